package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

const (
	itemSelector    = "div.list-rst.js-rst-cassette-wrap"
	nameSelector    = "a.list-rst__rst-name-target"
	scoreSelector   = "span.c-rating__val"
	reviewsSelector = "em.list-rst__rvw-count-num"
	countSelector   = ".c-page-count strong"

	addressSelector = "p.rstinfo-table__address"
	phoneSelector   = "strong.rstinfo-table__tel-num"
	tableSelector   = "#rst-data-head table.rstinfo-table__table"
	noticeSelector  = "p.rstinfo-table__notice"

	defaultScore   = "0"
	defaultReviews = "0"
)

// ParseListing extracts the items and the total count of a listing page.
// Relative links resolve against base. A page without a count has HasTotal false.
func ParseListing(body []byte, base *url.URL) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("parse listing html: %w", err)
	}

	var page crawler.ListingPage
	if counts := doc.Find(countSelector); counts.Length() > 0 {
		if total, ok := parseCount(counts.Last().Text()); ok {
			page.Total = total
			page.HasTotal = true
		}
	}

	doc.Find(itemSelector).Each(func(_ int, s *goquery.Selection) {
		anchor := s.Find(nameSelector).First()
		item := crawler.ListingItem{
			Name:    cleanText(anchor.Text()),
			Link:    resolveLink(base, anchor.AttrOr("href", "")),
			Score:   textOr(s.Find(scoreSelector).First(), defaultScore),
			Reviews: textOr(s.Find(reviewsSelector).First(), defaultReviews),
		}
		page.Items = append(page.Items, item)
	})
	return page, nil
}

// ParseDetail extracts the address, phone and info table of an item page.
// Fields the page does not carry stay empty.
func ParseDetail(body []byte) (crawler.ItemDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.ItemDetail{}, fmt.Errorf("parse detail html: %w", err)
	}

	var detail crawler.ItemDetail
	if addr := doc.Find(addressSelector).First(); addr.Length() > 0 {
		full := cleanText(addr.Text())
		anchors := addr.Find("a")
		part := func(i int) string {
			if i < anchors.Length() {
				return cleanText(anchors.Eq(i).Text())
			}
			return ""
		}
		detail.Prefecture = part(0)
		detail.City = part(1)
		detail.Town = part(2)
		detail.FullAddress = full

		rest := full
		for _, known := range []string{detail.Prefecture, detail.City, detail.Town} {
			if known != "" {
				rest = strings.Replace(rest, known, "", 1)
			}
		}
		detail.AddressDetail = strings.TrimSpace(rest)
	}

	detail.Phone = cleanText(doc.Find(phoneSelector).First().Text())

	doc.Find(tableSelector).Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := cleanText(row.Find("th").First().Text())
		td := row.Find("td").First()
		if th == "" || td.Length() == 0 {
			return
		}
		switch {
		case strings.Contains(th, "ジャンル"):
			detail.Category = cellValue(td)
		case th == "予算（口コミ集計）":
			var parts []string
			td.Find("em").Each(func(_ int, em *goquery.Selection) {
				if text := cleanText(em.Text()); text != "" {
					parts = append(parts, text)
				}
			})
			detail.Budget = strings.Join(parts, " ")
		case strings.Contains(th, "支払い方法"):
			detail.Payment = cellValue(td)
		case strings.Contains(th, "席数"):
			detail.Seats = cellValue(td)
		case strings.Contains(th, "オープン日"):
			detail.OpenDate = cellValue(td)
		}
	})
	return detail, nil
}

// cellValue returns the cell text with any notice appended as "value（notice）".
func cellValue(td *goquery.Selection) string {
	notice := td.Find(noticeSelector).First()
	noticeText := cleanText(notice.Text())
	clone := td.Clone()
	clone.Find(noticeSelector).Remove()
	value := cleanText(clone.Text())
	if noticeText == "" {
		return value
	}
	return value + "（" + noticeText + "）"
}

func textOr(s *goquery.Selection, fallback string) string {
	if s.Length() == 0 {
		return fallback
	}
	if text := cleanText(s.Text()); text != "" {
		return text
	}
	return fallback
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseCount(s string) (int, bool) {
	digits := strings.NewReplacer(",", "", "件", "", " ", "").Replace(cleanText(s))
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	link, err := crawler.CanonicalLink(ref.String())
	if err != nil {
		return ""
	}
	return link
}
