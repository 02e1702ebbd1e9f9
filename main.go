// AdvFilter is a content-filtering engine for a browser extension.  It decides
// the fate of the browser requests using the filter lists and serves the
// decisions over a local JSON API.
package main

import "github.com/advblocker/advfilter/internal/cmd"

func main() {
	cmd.Main()
}
