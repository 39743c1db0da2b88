// Package main hosts the deckharvest entrypoint.
//
// Architecture overview:
//   - Routing: internal/router classifies each input as pasted text, a decklist page, a container page
//     (user profile, tournament, search) or unsupported. Shortened links are unshortened first; the most
//     specific registered pattern wins.
//   - Fetch pipeline: a Colly probe fetch, promoted to a headless Chromedp fetch when the heuristic detector
//     sees a script shell, wrapped in exponential-backoff retries and per-host pacing.
//   - Parsing: one adapter per site turns documents into raw decklists or child URLs; internal/normalize resolves
//     card names against the local card index, aliases, fuzzy matching and (optionally) Scryfall.
//   - Persistence & fanout: fetched documents are archived to the configured BlobStore (memory/local/GCS), each
//     new deck is written to Postgres (or memory) keyed by fingerprint, and a DeckEvent is published to Pub/Sub
//     when enabled. Progress events are buffered by a Hub and delivered to log, Prometheus and status sinks.
//   - Configuration & plumbing: Viper populates config from a YAML file and DECKHARVEST_* env vars; zap provides
//     structured logging; Prometheus metrics are exported on /metrics by `serve`.
//
// Quick checklist:
//   - Point cards.bulk_path at a Scryfall oracle-cards dump (or cards.cache_path at an existing cache).
//   - Harvest: deckharvest harvest --config config.yaml -o decks/ https://moxfield.com/decks/<id>
//   - Paste: pbpaste | deckharvest parse --format forge
//   - Inspect routing: deckharvest routes https://bit.ly/<code>
//   - Serve status: deckharvest serve --addr :8080
package main
