package toolreg

import (
	"context"
	"fmt"
)

// BrowserDriver is whatever external automation backend a deployment
// plugs in. The core never implements a browser driver itself; it only
// forwards the navigate/click/screenshot calls an agent makes.
type BrowserDriver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context) (pathRelative string, err error)
}

// BrowserTools delegates browser automation to an external driver. If
// no driver is configured, every call fails with a clear error instead
// of silently no-opping.
type BrowserTools struct {
	driver BrowserDriver
}

// NewBrowserTools wraps driver, which may be nil if browser automation
// is not configured for this deployment.
func NewBrowserTools(driver BrowserDriver) *BrowserTools {
	return &BrowserTools{driver: driver}
}

// RegisterAll adds every browser tool to r.
func (bt *BrowserTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"browser_navigate", "Navigate the browser to a URL.", `{
			"type": "object",
			"properties": {"url": {"type": "string"}},
			"required": ["url"]
		}`, bt.navigate},
		{"browser_click", "Click an element by CSS selector.", `{
			"type": "object",
			"properties": {"selector": {"type": "string"}},
			"required": ["selector"]
		}`, bt.click},
		{"browser_screenshot", "Take a screenshot of the current page.", `{}`, bt.screenshot},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (bt *BrowserTools) navigate(ctx context.Context, input map[string]any) (map[string]any, error) {
	if bt.driver == nil {
		return nil, fmt.Errorf("no browser driver configured")
	}
	url, err := requireString(input, "url")
	if err != nil {
		return nil, err
	}
	if err := bt.driver.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	return map[string]any{"ok": true}, nil
}

func (bt *BrowserTools) click(ctx context.Context, input map[string]any) (map[string]any, error) {
	if bt.driver == nil {
		return nil, fmt.Errorf("no browser driver configured")
	}
	selector, err := requireString(input, "selector")
	if err != nil {
		return nil, err
	}
	if err := bt.driver.Click(ctx, selector); err != nil {
		return nil, fmt.Errorf("click: %w", err)
	}
	return map[string]any{"ok": true}, nil
}

func (bt *BrowserTools) screenshot(ctx context.Context, input map[string]any) (map[string]any, error) {
	if bt.driver == nil {
		return nil, fmt.Errorf("no browser driver configured")
	}
	path, err := bt.driver.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return map[string]any{"path": path}, nil
}
