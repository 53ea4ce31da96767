package session

import (
	"encoding/json"

	"github.com/chromedp/cdproto/runtime"
)

// embedJSON renders v as a JSON literal for safe embedding in a script.
// User input never reaches a script through string concatenation.
func embedJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true).WithReturnByValue(true)
}

// selectorHTMLScript returns the matched element's outerHTML, or null.
// Parameter: selector (JSON string).
const selectorHTMLScript = `(() => {
	const el = document.querySelector(%s);
	return el ? el.outerHTML : null;
})()`

// documentHTMLScript renders the document, optionally depth-limited.
// Parameter: maxDepth (JSON number, 0 = unlimited).
const documentHTMLScript = `(() => {
	const maxDepth = %s;
	if (!maxDepth) return document.documentElement.outerHTML;
	const prune = (node, depth) => {
		const copy = node.cloneNode(false);
		if (depth < maxDepth) {
			for (const child of node.children) {
				copy.appendChild(prune(child, depth + 1));
			}
		}
		return copy;
	};
	return prune(document.documentElement, 1).outerHTML;
})()`

// boundingBoxScript returns the matched element's viewport rectangle, or
// null when the selector matches nothing. Parameter: selector.
const boundingBoxScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return { x: r.x, y: r.y, width: r.width, height: r.height };
})()`

// elementPickerScript overlays the page, highlights elements under the
// cursor, and resolves with a JSON description of the clicked element.
const elementPickerScript = `new Promise((resolve, reject) => {
	const overlay = document.createElement('div');
	overlay.style.cssText = 'position:fixed;inset:0;z-index:2147483647;cursor:crosshair;background:transparent';
	const box = document.createElement('div');
	box.style.cssText = 'position:fixed;pointer-events:none;z-index:2147483646;border:2px solid #4285f4;background:rgba(66,133,244,0.15)';
	document.body.appendChild(overlay);
	document.body.appendChild(box);

	const under = (ev) => {
		overlay.style.pointerEvents = 'none';
		const el = document.elementFromPoint(ev.clientX, ev.clientY);
		overlay.style.pointerEvents = 'auto';
		return el;
	};

	const cssPath = (el) => {
		const parts = [];
		while (el && el.nodeType === 1 && el !== document.documentElement) {
			let part = el.tagName.toLowerCase();
			if (el.id) { parts.unshift(part + '#' + CSS.escape(el.id)); break; }
			const siblings = el.parentElement ? [...el.parentElement.children].filter(c => c.tagName === el.tagName) : [];
			if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(el) + 1) + ')';
			parts.unshift(part);
			el = el.parentElement;
		}
		return parts.join(' > ');
	};

	const cleanup = () => {
		overlay.remove();
		box.remove();
		document.removeEventListener('keydown', onKey, true);
	};

	const onKey = (ev) => {
		if (ev.key === 'Escape') { cleanup(); reject(new Error('selection cancelled')); }
	};

	overlay.addEventListener('mousemove', (ev) => {
		const el = under(ev);
		if (!el) return;
		const r = el.getBoundingClientRect();
		box.style.left = r.x + 'px';
		box.style.top = r.y + 'px';
		box.style.width = r.width + 'px';
		box.style.height = r.height + 'px';
	});

	overlay.addEventListener('click', (ev) => {
		ev.preventDefault();
		ev.stopPropagation();
		const el = under(ev);
		cleanup();
		if (!el) { reject(new Error('no element under cursor')); return; }
		const r = el.getBoundingClientRect();
		resolve(JSON.stringify({
			selector: cssPath(el),
			tag: el.tagName.toLowerCase(),
			id: el.id || '',
			classes: el.className || '',
			text: (el.textContent || '').trim().slice(0, 200),
			x: r.x, y: r.y, width: r.width, height: r.height,
		}));
	}, { once: true });

	document.addEventListener('keydown', onKey, true);
})`

// originScript reports the page's actual origin after navigation.
const originScript = `window.location.origin`

// fetchScript performs an in-page fetch with cookies included and
// resolves with a JSON string describing the response. Parameters: url,
// options object ({method, headers, body}).
const fetchScript = `(async () => {
	const url = %s;
	const init = %s;
	init.credentials = 'include';
	const resp = await fetch(url, init);
	const headers = {};
	resp.headers.forEach((v, k) => { headers[k] = v; });
	const body = await resp.text();
	return JSON.stringify({
		status: resp.status,
		statusText: resp.statusText,
		headers: headers,
		body: body,
	});
})()`
