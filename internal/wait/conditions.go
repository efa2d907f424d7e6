package wait

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/profiler-e2e/internal/browser"
)

// TextAppears holds once the page's visible text contains substr
func TextAppears(substr string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("text %q to appear", substr),
		Probe: func(ctx context.Context, page browser.Page) (string, bool, error) {
			text, err := page.BodyText(ctx)
			if err != nil {
				return "", false, err
			}
			return text, strings.Contains(text, substr), nil
		},
	}
}

// TextAbsent holds once the page's visible text no longer contains substr
func TextAbsent(substr string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("text %q to disappear", substr),
		Probe: func(ctx context.Context, page browser.Page) (string, bool, error) {
			text, err := page.BodyText(ctx)
			if err != nil {
				return "", false, err
			}
			return text, !strings.Contains(text, substr), nil
		},
	}
}

// TitleContains holds once the document title contains substr
func TitleContains(substr string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("title to contain %q", substr),
		Probe: func(ctx context.Context, page browser.Page) (string, bool, error) {
			title, err := page.Title(ctx)
			if err != nil {
				return "", false, err
			}
			return title, strings.Contains(title, substr), nil
		},
	}
}

// ElementPresent holds once an element matching q exists
func ElementPresent(q browser.Query) Condition[browser.ElementState] {
	return Condition[browser.ElementState]{
		Description: fmt.Sprintf("element %s to be present", q),
		Probe: func(ctx context.Context, page browser.Page) (browser.ElementState, bool, error) {
			state, err := page.Inspect(ctx, q)
			if err != nil {
				return browser.ElementState{}, false, err
			}
			return state, state.Exists, nil
		},
	}
}

// ElementClickable holds once an element matching q exists, is displayed
// and is not disabled
func ElementClickable(q browser.Query) Condition[browser.ElementState] {
	return Condition[browser.ElementState]{
		Description: fmt.Sprintf("element %s to be clickable", q),
		Probe: func(ctx context.Context, page browser.Page) (browser.ElementState, bool, error) {
			state, err := page.Inspect(ctx, q)
			if err != nil {
				return browser.ElementState{}, false, err
			}
			return state, state.Clickable(), nil
		},
	}
}

// CountExceeds holds once more than n elements match selector
func CountExceeds(selector string, n int) Condition[int] {
	return Condition[int]{
		Description: fmt.Sprintf("more than %d elements matching %s", n, selector),
		Probe: func(ctx context.Context, page browser.Page) (int, bool, error) {
			count, err := page.Count(ctx, selector)
			if err != nil {
				return 0, false, err
			}
			return count, count > n, nil
		},
	}
}

// TabCountExceeds holds once the tab bar has more than n tabs
func TabCountExceeds(tabSelector string, n int) Condition[int] {
	cond := CountExceeds(tabSelector, n)
	cond.Description = fmt.Sprintf("tab count to exceed %d", n)
	return cond
}

// CountStable holds once two consecutive reads of the match count agree.
// Each call returns a condition with its own memory of the previous read.
func CountStable(selector string) Condition[int] {
	last := -1
	return Condition[int]{
		Description: fmt.Sprintf("count of %s to stabilise", selector),
		Probe: func(ctx context.Context, page browser.Page) (int, bool, error) {
			count, err := page.Count(ctx, selector)
			if err != nil {
				last = -1
				return 0, false, err
			}
			stable := count == last
			last = count
			return count, stable, nil
		},
	}
}

// CountAtLeast holds once at least n elements match selector
func CountAtLeast(selector string, n int) Condition[int] {
	return Condition[int]{
		Description: fmt.Sprintf("at least %d elements matching %s", n, selector),
		Probe: func(ctx context.Context, page browser.Page) (int, bool, error) {
			count, err := page.Count(ctx, selector)
			if err != nil {
				return 0, false, err
			}
			return count, count >= n, nil
		},
	}
}

// CountSteady holds once the match count has not changed for window.
// Each call returns a condition with its own memory of the last change.
func CountSteady(selector string, window time.Duration) Condition[int] {
	last := -1
	var since time.Time
	return Condition[int]{
		Description: fmt.Sprintf("count of %s to hold for %s", selector, window),
		Probe: func(ctx context.Context, page browser.Page) (int, bool, error) {
			count, err := page.Count(ctx, selector)
			if err != nil {
				last = -1
				return 0, false, err
			}
			now := time.Now()
			if count != last {
				last, since = count, now
				return count, window <= 0, nil
			}
			return count, now.Sub(since) >= window, nil
		},
	}
}

// SelectorTextContains holds once any element matching selector has text
// containing substr. The observed value is the concatenated text.
func SelectorTextContains(selector, substr string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("%s to contain %q", selector, substr),
		Probe: func(ctx context.Context, page browser.Page) (string, bool, error) {
			texts, err := page.Texts(ctx, selector)
			if err != nil {
				return "", false, err
			}
			joined := strings.Join(texts, "\n")
			for _, text := range texts {
				if strings.Contains(text, substr) {
					return joined, true, nil
				}
			}
			return joined, false, nil
		},
	}
}

// SelectorTextChanged holds once the concatenated text of the elements
// matching selector is non-empty and differs from baseline
func SelectorTextChanged(selector, baseline string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("%s to receive new output", selector),
		Probe: func(ctx context.Context, page browser.Page) (string, bool, error) {
			texts, err := page.Texts(ctx, selector)
			if err != nil {
				return "", false, err
			}
			joined := strings.Join(texts, "\n")
			return joined, strings.TrimSpace(joined) != "" && joined != baseline, nil
		},
	}
}
