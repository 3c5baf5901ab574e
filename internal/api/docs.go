package api

// docsHTML renders the OpenAPI document with Stoplight Elements and links
// the live session and batch feeds.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Replay Recorder Control API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    nav.feeds { position: fixed; top: 12px; right: 16px; z-index: 9999; display: flex; gap: 8px; }
    nav.feeds a { background: #161b22; border: 1px solid #30363d; border-radius: 6px; color: #58a6ff;
      font: 500 12px -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; padding: 5px 12px; text-decoration: none; }
  </style>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <nav class="feeds">
    <a href="/api/v1/events?feeds=session">Session feed</a>
    <a href="/api/v1/events?feeds=batch">Batch feed</a>
    <a href="/api/v1/status">Status</a>
  </nav>
  <elements-api apiDescriptionUrl="/openapi.json" router="hash" layout="sidebar" darkMode />
</body>
</html>`
