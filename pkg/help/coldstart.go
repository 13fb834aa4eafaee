package help

// ColdstartYAML is printed by `content-gate quickstart`.
const ColdstartYAML = `# content-gate Quick Start

layout:
  articles: "content/articles/<id>.json (one Article per file)"
  queue: "content/meta_fix_queue.json (remediation snapshot, rewritten atomically)"
  history: "content-gate.db (SQLite: runs, reports, queue_events)"

commands:
  import_page: |
    content-gate import --file saved-page.html --url https://shop.example.com/blogs/news/coop

  scan_all: |
    content-gate scan --summary
    content-gate scan --format yaml --id backyard-chicken-coop-basics

  gate_one: |
    content-gate gate --id backyard-chicken-coop-basics
    content-gate gate --file draft.html --title "Backyard Chicken Coop Basics"

  fix_one: |
    content-gate fix --id backyard-chicken-coop-basics --dry-run --out fixed.html

  remediation_queue: |
    content-gate queue enqueue
    content-gate --source-bank SOURCE_BANK.yaml queue run --limit 10
    content-gate queue status
    content-gate queue prune

  history: |
    content-gate history --runs
    content-gate history --id backyard-chicken-coop-basics --format table

gate:
  checks: [structure, word_count, generic, contamination, images, sources]
  pass: "at least min_passing_checks (default 5) of 6"
  publishable: "pass and no generic, contamination, off_topic or drift issue"

queue_states:
  pending: "waiting to be processed"
  in_progress: "selected; at most one at a time"
  done: "fix written back and the article improved"
  failed: "retried until max_attempts"
  needs_sources: "reopened once a source bank loads"
  skipped: "out of attempts or the article is gone"

exit_codes:
  0: "success / gate passed"
  1: "error or gate failed"
  2: "fix incomplete, source data required"
`
