package crawl

import "testing"

func TestCheckURLSafety(t *testing.T) {
	safe := []string{
		"https://example.com",
		"http://example.com:8080/path",
		"https://93.184.216.34/",
	}
	for _, url := range safe {
		if err := CheckURLSafety(url); err != nil {
			t.Fatalf("expected %q to be safe, got %v", url, err)
		}
	}

	unsafe := []string{
		"http://localhost/admin",
		"http://app.localhost/",
		"http://127.0.0.1:8080/",
		"http://[::1]/",
		"http://10.0.0.5/",
		"http://172.16.1.1/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data",
		"http://0.0.0.0/",
		"ftp://example.com/",
		"https:///nohost",
	}
	for _, url := range unsafe {
		if err := CheckURLSafety(url); err == nil {
			t.Fatalf("expected %q to be rejected", url)
		}
	}
}
