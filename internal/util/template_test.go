package util

import (
	"strings"
	"sync"
	"testing"
)

func TestRenderTemplate_Basic(t *testing.T) {
	tmpl := "Title: {{.ProductTitle}}, max {{.MaxTitleLength}} chars."
	data := map[string]interface{}{
		"ProductTitle":   "Red Mug",
		"MaxTitleLength": 60,
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "Title: Red Mug, max 60 chars."
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestRenderTemplate_Conditional(t *testing.T) {
	tmpl := "Describe.{{if .AvoidFilenames}} Avoid: {{.AvoidFilenames}}{{end}}"

	result, err := RenderTemplate(tmpl, map[string]interface{}{"AvoidFilenames": ""})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result != "Describe." {
		t.Errorf("Expected no avoid clause, got %q", result)
	}

	result, err = RenderTemplate(tmpl, map[string]interface{}{"AvoidFilenames": "red-mug, blue-mug"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasSuffix(result, "Avoid: red-mug, blue-mug") {
		t.Errorf("Expected avoid clause, got %q", result)
	}
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name", map[string]interface{}{"Name": "Alice"})
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name}}", map[string]interface{}{})
	if err == nil {
		t.Error("Expected error for missing key, got nil")
	}
}

func TestRenderTemplate_ForbiddenDirectives(t *testing.T) {
	for _, tmpl := range []string{
		"{{call .Func}}",
		`{{define "x"}}y{{end}}`,
		`{{template "x"}}`,
		`{{block "x" .}}y{{end}}`,
	} {
		if _, err := RenderTemplate(tmpl, map[string]interface{}{"Func": nil}); err == nil {
			t.Errorf("Expected %q to be rejected", tmpl)
		}
		if err := ValidateTemplate(tmpl); err == nil {
			t.Errorf("ValidateTemplate should reject %q", tmpl)
		}
	}
}

func TestTemplateCacheReusesParsedTemplate(t *testing.T) {
	ClearTemplateCache()

	tmpl := "Hello {{.Name}}"
	for _, name := range []string{"World", "Gopher"} {
		result, err := RenderTemplate(tmpl, map[string]interface{}{"Name": name})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if result != "Hello "+name {
			t.Errorf("Expected 'Hello %s', got '%s'", name, result)
		}
	}

	first, err := parseTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	second, err := parseTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Expected cached template to be reused")
	}

	ClearTemplateCache()
	third, err := parseTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("Expected a fresh parse after ClearTemplateCache")
	}
}

func TestTemplateCacheConcurrency(t *testing.T) {
	ClearTemplateCache()

	tmpl := "Count: {{.Count}}"
	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := RenderTemplate(tmpl, map[string]interface{}{"Count": n}); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent render failed: %v", err)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("héllo wörld", 5); got != "héllo..." {
		t.Errorf("TruncateString() = %q", got)
	}
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString() = %q", got)
	}
}
