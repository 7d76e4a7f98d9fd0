// Package extract turns catalog listing markup into product records.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// Selectors locates the parts of a listing page. Name and Buy blocks are
// paired by position: the i-th name block belongs to the i-th buy block.
type Selectors struct {
	Name        string `mapstructure:"name"`
	NameLink    string `mapstructure:"name_link"`
	Code        string `mapstructure:"code"`
	Buy         string `mapstructure:"buy"`
	Price       string `mapstructure:"price"`
	PageNav     string `mapstructure:"page_nav"`
	PageNavLink string `mapstructure:"page_nav_link"`
}

// DefaultSelectors match the maxidom.ru catalog layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Name:        "div.l-product__name",
		NameLink:    "a",
		Code:        "div.lvl1__product-body-info-code",
		Buy:         "div.l-product__buy",
		Price:       "div.l-product__price-base",
		PageNav:     "div.lvl2__content-nav-numbers-number",
		PageNavLink: "a",
	}
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct {
	sel Selectors
}

// New builds an Extractor; empty selector fields fall back to the defaults.
func New(sel Selectors) *Extractor {
	def := DefaultSelectors()
	fill := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	fill(&sel.Name, def.Name)
	fill(&sel.NameLink, def.NameLink)
	fill(&sel.Code, def.Code)
	fill(&sel.Buy, def.Buy)
	fill(&sel.Price, def.Price)
	fill(&sel.PageNav, def.PageNav)
	fill(&sel.PageNavLink, def.PageNavLink)
	return &Extractor{sel: sel}
}

// Extract returns every product on the page in document order. An entry
// missing its name, code, or price fails the whole page.
func (e *Extractor) Extract(markup []byte) ([]catalog.ProductRecord, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}
	names := doc.Find(e.sel.Name)
	buys := doc.Find(e.sel.Buy)
	if names.Length() != buys.Length() {
		return nil, fmt.Errorf("%w: %d name blocks but %d price blocks",
			catalog.ErrExtraction, names.Length(), buys.Length())
	}

	records := make([]catalog.ProductRecord, 0, names.Length())
	for i := 0; i < names.Length(); i++ {
		rec, err := e.entry(names.Eq(i), buys.Eq(i))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Extractor) entry(nameBlock, buyBlock *goquery.Selection) (catalog.ProductRecord, error) {
	link := nameBlock.Find(e.sel.NameLink).First()
	if link.Length() == 0 {
		return catalog.ProductRecord{}, fmt.Errorf("%w: missing name link", catalog.ErrExtraction)
	}
	name := Capitalize(strings.TrimSpace(link.Text()))
	if name == "" {
		return catalog.ProductRecord{}, fmt.Errorf("%w: empty name", catalog.ErrExtraction)
	}

	codeNode := nameBlock.Find(e.sel.Code).First()
	if codeNode.Length() == 0 {
		return catalog.ProductRecord{}, fmt.Errorf("%w: missing code field", catalog.ErrExtraction)
	}
	code, err := ParseCode(codeNode.Text())
	if err != nil {
		return catalog.ProductRecord{}, err
	}

	priceNode := buyBlock.Find(e.sel.Price).First()
	if priceNode.Length() == 0 {
		return catalog.ProductRecord{}, fmt.Errorf("%w: missing price field", catalog.ErrExtraction)
	}
	price, currency, err := SplitPrice(priceNode.Text())
	if err != nil {
		return catalog.ProductRecord{}, err
	}

	return catalog.ProductRecord{
		Code:     code,
		Name:     name,
		Price:    price,
		Currency: currency,
	}, nil
}

// PageCount reports how many listing pages the catalog has. A page without
// the navigation block is a single page; otherwise the last navigation link
// holds the page count.
func (e *Extractor) PageCount(markup []byte) (int, error) {
	doc, err := parse(markup)
	if err != nil {
		return 0, err
	}
	nav := doc.Find(e.sel.PageNav).First()
	if nav.Length() == 0 {
		return 1, nil
	}
	links := nav.Find(e.sel.PageNavLink)
	if links.Length() == 0 {
		return 1, nil
	}
	raw := strings.TrimSpace(links.Last().Text())
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: page navigation entry %q is not a number", catalog.ErrExtraction, raw)
	}
	if n < 1 {
		return 1, nil
	}
	return n, nil
}

// ParseCode reads the integer that follows the label token, e.g. "Код: 12345".
func ParseCode(text string) (int64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: code field %q has no value", catalog.ErrExtraction, text)
	}
	code, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: code %q: %v", catalog.ErrExtraction, fields[1], err)
	}
	return code, nil
}

var pricePattern = regexp.MustCompile(`([\d\s\x{00A0}\x{202F}]+)([^\d]+)`)

// SplitPrice separates a combined price string such as "1 234 руб." into
// the whole amount and the currency symbol.
func SplitPrice(text string) (int64, string, error) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, "", fmt.Errorf("%w: price %q has no amount/currency", catalog.ErrExtraction, text)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, m[1])
	price, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: price %q: %v", catalog.ErrExtraction, text, err)
	}
	currency := strings.TrimSuffix(strings.TrimSpace(m[2]), ".")
	if currency == "" {
		return 0, "", fmt.Errorf("%w: price %q has no currency", catalog.ErrExtraction, text)
	}
	return price, currency, nil
}

// Capitalize upper-cases the first character and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func parse(markup []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", catalog.ErrExtraction, err)
	}
	return doc, nil
}
