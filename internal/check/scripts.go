package check

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsString renders s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func cssVariableScript(name string) string {
	return fmt.Sprintf("getComputedStyle(document.documentElement).getPropertyValue(%s)", jsString(name))
}

func globalScript(name string) string {
	return fmt.Sprintf("window[%s]", jsString(name))
}

// transformScript throws when the container is missing, which fails the run.
func transformScript(containerID string) string {
	return fmt.Sprintf("document.getElementById(%s).style.transform", jsString(containerID))
}

func scrollScript(slidesSelector string) string {
	return fmt.Sprintf(`(function(selector) {
	const slides = Array.from(document.querySelectorAll(selector));
	return {
		window: { x: window.scrollX, y: window.scrollY },
		body: document.body.scrollTop,
		slides: slides.map(s => s.scrollTop)
	};
})(%s)`, jsString(slidesSelector))
}

// prettyJSON renders v the way the report prints scroll snapshots.
func prettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// displayValue formats a JS value read from the page. A missing global reads as undefined.
func displayValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	default:
		return prettyJSON(x)
	}
}
