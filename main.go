// The main package for the catalog-scraper executable.
package main

import (
	"github.com/JakeFAU/catalog-scraper/cmd"
)

func main() {
	cmd.Execute()
}
