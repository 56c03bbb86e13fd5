/*
Package render obtains the post-script DOM of a target page from a remote
headless-browser service (browserless-compatible).

Two transports are available:

  - content: POST {base}/content?token=... with resty, one retry on transient
    failure, size ceiling enforced while reading the body
  - cdp: chromedp attached to the service's DevTools websocket

Both share the same error kinds (RenderTimeout, RenderUnavailable), the same
circuit breaker and the same snapshot post-processing: charset decoding to
UTF-8, MIME sniffing, truncation at MaxBytes.

Example Usage:

	renderer := render.New(render.Options{
		BaseURL: "https://production-sfo.browserless.io",
		Token:   token,
	}, logger, metrics)
	page, err := renderer.Render(ctx, target, 45*time.Second)
*/
package render
