// internal/snapshot/html.go - Scans dashboard markup for failing camera cards
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxPageBytes = 8 << 20

var cardClasses = []string{"camera-card", "camera", "card"}

type HTMLProvider struct {
	client *http.Client
	opts   Options
}

func NewHTMLProvider(client *http.Client, opts Options) *HTMLProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTMLProvider{client: client, opts: opts}
}

func (p *HTMLProvider) Snapshot(ctx context.Context, address string) (*Snapshot, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	resp, err := fetch(ctx, p.client, p.opts, address)
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "navigate", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "read", Err: err}
	}

	failing, total, err := ScanFailingCameras(bytes.NewReader(body), p.opts.FailureText)
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "parse", Err: err}
	}

	return &Snapshot{
		Failing:    failing,
		Total:      total,
		TakenAt:    time.Now(),
		Capture:    body,
		CaptureExt: "html",
	}, nil
}

// ScanFailingCameras finds camera cards whose text contains failureText.
// Cards are elements with a data-camera-id attribute or one of the card
// classes; nested cards count once, through their outermost element. A card
// is identified by its data-camera-id, data-camera or id attribute, else by
// its 1-based position; a label repeated across cards is reported once.
// Without any cards, every innermost element holding
// the failure text counts as one camera.
func ScanFailingCameras(r io.Reader, failureText string) ([]string, int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse dashboard: %w", err)
	}

	var cards []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isCard(n) {
			cards = append(cards, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var failing []string
	if len(cards) == 0 {
		for i := range innermostContaining(doc, failureText) {
			failing = append(failing, strconv.Itoa(i+1))
		}
		return failing, len(failing), nil
	}

	seen := make(map[string]bool)
	for i, card := range cards {
		if !strings.Contains(textContent(card), failureText) {
			continue
		}
		label := attr(card, "data-camera-id")
		if label == "" {
			label = attr(card, "data-camera")
		}
		if label == "" {
			label = attr(card, "id")
		}
		if label == "" {
			label = strconv.Itoa(i + 1)
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		failing = append(failing, label)
	}
	return failing, len(cards), nil
}

func isCard(n *html.Node) bool {
	if hasAttr(n, "data-camera-id") {
		return true
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		for _, want := range cardClasses {
			if class == want {
				return true
			}
		}
	}
	return false
}

func innermostContaining(root *html.Node, text string) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		childHit := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				childHit = true
			}
		}
		if n.Type != html.ElementNode {
			return childHit
		}
		if childHit {
			return true
		}
		if strings.Contains(textContent(n), text) {
			out = append(out, n)
			return true
		}
		return false
	}
	walk(root)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
