package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// findScript resolves a Query to an element. It is spliced into the other
// scripts and expects sel and text in scope.
const findScript = `
	const matches = Array.from(document.querySelectorAll(sel));
	const el = matches.find(e => !text || (e.innerText || e.textContent || '').includes(text)) || null;
`

const visibleScript = `
	const isVisible = e => {
		if (!e || e.getClientRects().length === 0) return false;
		const style = window.getComputedStyle(e);
		return style.visibility !== 'hidden' && style.display !== 'none';
	};
`

const inspectScript = `(sel, text) => {` + findScript + visibleScript + `
	if (!el) return {exists: false, displayed: false, disabled: false, text: ''};
	return {
		exists: true,
		displayed: isVisible(el),
		disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
		text: (el.innerText || el.textContent || '').trim(),
	};
}`

const markScript = `(sel, text, token) => {` + findScript + `
	document.querySelectorAll('[data-e2e-target]').forEach(e => e.removeAttribute('data-e2e-target'));
	if (!el) return false;
	el.setAttribute('data-e2e-target', token);
	return true;
}`

const candidatesScript = `(sel) => {` + visibleScript + `
	return Array.from(document.querySelectorAll(sel)).map((e, i) => ({
		index: i,
		text: (e.innerText || e.textContent || '').trim(),
		visible: isVisible(e),
		disabled: !!e.disabled || e.getAttribute('aria-disabled') === 'true',
	}));
}`

const clickCandidateScript = `(sel, index, expected) => {
	const el = document.querySelectorAll(sel)[index];
	if (!el || !el.isConnected) return false;
	if ((el.innerText || el.textContent || '').trim() !== expected) return false;
	el.click();
	return true;
}`

const textsScript = `(sel) => Array.from(document.querySelectorAll(sel)).map(e => e.innerText || e.textContent || '')`

// call renders an immediately invoked function expression with JSON-encoded arguments
func call(fn string, args ...interface{}) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument: %w", err)
		}
		encoded = append(encoded, string(b))
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}
