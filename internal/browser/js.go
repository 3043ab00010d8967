package browser

import (
	"encoding/json"
	"fmt"
)

// finderJS resolves a locator to a list of DOM elements. The same resolution
// logic backs Count, Click, and Fill so a lookup that counted an element can
// always act on it.
const finderJS = `(function(kind, value, name) {
	const textOf = (el) => (el.textContent || el.value || '').trim();
	const queryAll = (sel) => {
		try { return Array.from(document.querySelectorAll(sel)); } catch (e) { return []; }
	};
	switch (kind) {
	case 'test_id':
		return queryAll('[data-testid="' + value + '"]').concat(queryAll('[data-test-id="' + value + '"]'));
	case 'role': {
		const implicit = {
			button: ['button', 'input[type="submit"]', 'input[type="button"]'],
			link: ['a[href]'],
			textbox: ['input[type="text"]', 'input[type="email"]', 'input[type="password"]', 'input[type="search"]', 'input:not([type])', 'textarea'],
			checkbox: ['input[type="checkbox"]'],
			radio: ['input[type="radio"]'],
			combobox: ['select'],
			heading: ['h1', 'h2', 'h3', 'h4', 'h5', 'h6'],
			navigation: ['nav'],
			banner: ['header'],
			main: ['main'],
			contentinfo: ['footer'],
			form: ['form'],
		};
		let els = queryAll('[role="' + value + '"]');
		for (const sel of (implicit[value] || [])) {
			els = els.concat(queryAll(sel));
		}
		els = Array.from(new Set(els));
		if (name) {
			els = els.filter((el) => textOf(el) === name || el.getAttribute('aria-label') === name);
		}
		return els;
	}
	case 'text': {
		const out = [];
		for (const el of document.querySelectorAll('a, button, label, span, p, li, td, th, h1, h2, h3, h4, h5, h6, div')) {
			if (textOf(el) === value && el.children.length === 0) {
				out.push(el);
			}
		}
		return out;
	}
	case 'semantic':
	case 'structural':
	case 'css':
		return queryAll(value);
	default:
		return [];
	}
})`

// locatorExpr builds a JS expression applying op to the locator's matches.
// op receives the matched element array and must return a JSON-serializable value.
func locatorExpr(loc Locator, op string) string {
	kind, _ := json.Marshal(loc.Kind)
	value, _ := json.Marshal(loc.Value)
	name, _ := json.Marshal(loc.Name)
	return fmt.Sprintf(`(%s)(%s(%s, %s, %s))`, op, finderJS, kind, value, name)
}

func countExpr(loc Locator) string {
	return locatorExpr(loc, `(els) => els.length`)
}

func clickExpr(loc Locator) string {
	return locatorExpr(loc, `(els) => {
		if (els.length === 0) { return false; }
		els[0].scrollIntoView({block: 'center'});
		els[0].click();
		return true;
	}`)
}

func fillExpr(loc Locator, text string) string {
	quoted, _ := json.Marshal(text)
	return locatorExpr(loc, fmt.Sprintf(`(els) => {
		if (els.length === 0) { return false; }
		const el = els[0];
		el.scrollIntoView({block: 'center'});
		el.focus();
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}`, quoted))
}
