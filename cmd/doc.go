// Package cmd defines the harvester CLI.
//
// Architecture overview:
//   - Targets: internal/target crosses eligible leaf areas with leaf genres read from the store's
//     taxonomy tables. Each (area, genre) pair is one listing URL and one ledger row.
//   - Ledger: shop_list_summary holds get/skip/total counters per target. A target needs work while
//     get+skip < total, so an interrupted run resumes where it stopped.
//   - Pagination: internal/pagination measures page 1, records the total, then walks pages until the
//     remaining count reaches zero or harvest.max_pages is hit. Every listed item is logged in the
//     catalog, then stored unless the item store already has it.
//   - Rendering: internal/fetcher/headless keeps one Chrome for the run; listings reuse one tab and each
//     detail opens its own tab. render.mode=static swaps in the Colly fetcher.
//   - Persistence: Postgres (pgx, golang-migrate) or a single SQLite file; snapshots of detail pages
//     go to local disk or GCS; run events go to Pub/Sub.
//
// Quick checklist:
//   - Configure env vars with the HARVESTER_ prefix, e.g. HARVESTER_STORE_DRIVER=postgres,
//     HARVESTER_STORE_DSN, HARVESTER_HARVEST_MIN_PRIORITY, HARVESTER_METRICS_ADDR=:9090.
//   - harvester migrate, then harvester targets to preview, then harvester run.
package cmd
