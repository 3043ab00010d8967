package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/selector"
)

// extractJS scans the DOM for interactive and structural elements with a
// non-zero bounding box and reports the raw facts selector chains are built
// from. Selector candidate priority (test-id, role+name, visible text,
// structural CSS path) is applied on the Go side.
const extractJS = `(function() {
	const out = [];
	const cssPath = (el) => {
		const parts = [];
		while (el && el.nodeType === Node.ELEMENT_NODE && parts.length < 6) {
			let part = el.tagName.toLowerCase();
			if (el.id) { parts.unshift(part + '#' + el.id); break; }
			const parent = el.parentElement;
			if (parent) {
				const index = Array.from(parent.children).indexOf(el) + 1;
				part += ':nth-child(' + index + ')';
			}
			parts.unshift(part);
			el = el.parentElement;
		}
		return parts.join(' > ');
	};
	const describe = (el, kind) => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) { return null; }
		return {
			kind: kind,
			tag: el.tagName.toLowerCase(),
			testId: el.getAttribute('data-testid') || el.getAttribute('data-test-id') || '',
			role: el.getAttribute('role') || '',
			ariaLabel: el.getAttribute('aria-label') || '',
			text: (el.textContent || el.value || '').trim().slice(0, 120),
			id: el.id || '',
			classes: (typeof el.className === 'string' ? el.className : '').trim().split(/\s+/).filter(Boolean),
			inputType: el.type || '',
			href: el.getAttribute && el.getAttribute('href') || '',
			path: cssPath(el),
			inNav: !!el.closest('nav, header, [role="navigation"]'),
		};
	};
	const push = (selector, kind) => {
		document.querySelectorAll(selector).forEach((el) => {
			const d = describe(el, kind);
			if (d) { out.push(d); }
		});
	};
	push('button, [role="button"], input[type="submit"], input[type="button"]', 'button');
	push('a[href]', 'link');
	push('input:not([type="hidden"]):not([type="submit"]):not([type="button"]), textarea', 'input');
	push('select', 'select');
	push('input[type="checkbox"], input[type="radio"]', 'toggle');
	push('form', 'form');
	push('nav, header, main, footer, aside', 'landmark');
	push('table', 'table');
	return out;
})()`

// rawElement mirrors the JSON emitted by extractJS.
type rawElement struct {
	Kind      string   `json:"kind"`
	Tag       string   `json:"tag"`
	TestID    string   `json:"testId"`
	Role      string   `json:"role"`
	AriaLabel string   `json:"ariaLabel"`
	Text      string   `json:"text"`
	ID        string   `json:"id"`
	Classes   []string `json:"classes"`
	InputType string   `json:"inputType"`
	Href      string   `json:"href"`
	Path      string   `json:"path"`
	InNav     bool     `json:"inNav"`
}

// Extractor converts DOM scans into components and interactions carrying
// resilient selector chains.
type Extractor struct{}

// Extract scans the current page.
func (Extractor) Extract(ctx context.Context, page browser.Page) ([]ComponentInfo, []InteractionInfo, error) {
	var raw []rawElement
	if err := page.Evaluate(ctx, extractJS, &raw); err != nil {
		return nil, nil, fmt.Errorf("extract elements: %w", err)
	}
	return convertElements(raw)
}

func convertElements(raw []rawElement) ([]ComponentInfo, []InteractionInfo, error) {
	var components []ComponentInfo
	var interactions []InteractionInfo
	for _, el := range raw {
		chain := selector.BuildChain(nil, selector.Metadata{
			TestID:    el.TestID,
			Role:      roleFor(el),
			RoleName:  strings.TrimSpace(el.Text),
			Text:      el.Text,
			AriaLabel: el.AriaLabel,
			Tag:       el.Tag,
			ID:        el.ID,
			Classes:   el.Classes,
			CSSPath:   el.Path,
		})
		if len(chain) == 0 {
			continue
		}
		label := strings.TrimSpace(el.Text)
		if label == "" {
			label = el.AriaLabel
		}
		switch el.Kind {
		case "button", "link":
			interactions = append(interactions, InteractionInfo{
				Kind: "click", Label: label, Href: el.Href, Selectors: chain,
			})
		case "input":
			interactions = append(interactions, InteractionInfo{
				Kind: "fill", Label: label, Selectors: chain,
			})
		case "select":
			interactions = append(interactions, InteractionInfo{
				Kind: "select", Label: label, Selectors: chain,
			})
		case "toggle":
			interactions = append(interactions, InteractionInfo{
				Kind: "check", Label: label, Selectors: chain,
			})
		default:
			components = append(components, ComponentInfo{
				Type: componentType(el), Label: label, Selectors: chain,
			})
		}
	}
	return components, interactions, nil
}

// roleFor resolves the explicit role or the implicit ARIA role for the tag.
func roleFor(el rawElement) string {
	if el.Role != "" {
		return el.Role
	}
	switch el.Tag {
	case "button":
		return "button"
	case "a":
		if el.Href != "" {
			return "link"
		}
	case "select":
		return "combobox"
	case "nav":
		return "navigation"
	case "header":
		return "banner"
	case "main":
		return "main"
	case "footer":
		return "contentinfo"
	case "form":
		return "form"
	case "textarea":
		return "textbox"
	case "input":
		switch el.InputType {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "", "text", "email", "password", "search":
			return "textbox"
		}
	}
	return ""
}

func componentType(el rawElement) string {
	switch el.Kind {
	case "landmark":
		return el.Tag
	case "form", "table":
		return el.Kind
	default:
		return el.Tag
	}
}
