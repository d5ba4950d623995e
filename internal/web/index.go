package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Tradeit</title>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Press+Start+2P&family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-mid:#4d4d4d; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body {
      margin:0; min-height:100vh; display:flex; align-items:center; justify-content:center;
      padding:2rem; background:var(--bg); color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      width:min(960px, 96vw); background:var(--panel); border:3px solid var(--ink);
      padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15);
      display:flex; flex-direction:column; gap:1.5rem;
    }
    header { display:flex; justify-content:space-between; align-items:flex-start; gap:1rem; }
    .eyebrow {
      font-family:'Press Start 2P','Space Mono',monospace; font-size:.55rem;
      text-transform:uppercase; letter-spacing:.2em; margin:0;
    }
    .status {
      font-size:.65rem; text-transform:uppercase; letter-spacing:.1em;
      border:2px solid var(--ink); padding:.4rem .9rem; background:#ffffff;
      box-shadow:4px 4px 0 rgba(0,0,0,.15);
    }
    .status.paused { background:#111111; color:#ffffff; }
    .grid { display:grid; grid-template-columns:repeat(4, 1fr); gap:1rem; }
    .card { border:2px solid var(--ink); background:#ffffff; padding:1rem; }
    .card .label { font-size:.6rem; text-transform:uppercase; color:var(--ink-mid); letter-spacing:.1em; }
    .card .value { font-size:1.2rem; font-weight:700; margin-top:.4rem; }
    table { width:100%; border-collapse:collapse; font-size:.75rem; }
    th, td { text-align:left; padding:.4rem; border-bottom:1px dashed var(--ink-soft); }
    th { font-size:.6rem; text-transform:uppercase; color:var(--ink-mid); }
  </style>
</head>
<body>
  <div id="app">
    <header>
      <div>
        <p class="eyebrow">tradeit</p>
        <h1 id="equity">--</h1>
      </div>
      <span id="mode" class="status">connecting</span>
    </header>
    <div class="grid">
      <div class="card"><div class="label">Open positions</div><div class="value" id="open">--</div></div>
      <div class="card"><div class="label">Daily loss</div><div class="value" id="loss">--</div></div>
      <div class="card"><div class="label">Sharpe</div><div class="value" id="sharpe">--</div></div>
      <div class="card"><div class="label">Max drawdown</div><div class="value" id="mdd">--</div></div>
    </div>
    <div class="card">
      <div class="label">Prices</div>
      <table><thead><tr><th>Asset</th><th>Price</th></tr></thead><tbody id="prices"></tbody></table>
    </div>
    <div class="card">
      <div class="label">Recent trades</div>
      <table><thead><tr><th>Time</th><th>Symbol</th><th>Side</th><th>Qty</th><th>Price</th></tr></thead><tbody id="trades"></tbody></table>
    </div>
  </div>
  <script>
    const $ = (id) => document.getElementById(id);

    function render(s) {
      $('equity').textContent = Number(s.equity).toFixed(2);
      $('open').textContent = s.open_positions;
      $('loss').textContent = (s.daily_loss_pct || 0).toFixed(2) + '%';
      const mode = $('mode');
      mode.textContent = s.mode + (s.paused ? ' / paused' : '') + (s.strategy ? ' / ' + s.strategy : '');
      mode.classList.toggle('paused', !!s.paused);
      const rows = Object.entries(s.prices || {}).sort().map(([k, v]) =>
        '<tr><td>' + k + '</td><td>' + v + '</td></tr>');
      $('prices').innerHTML = rows.join('');
    }

    async function refresh() {
      try {
        const m = await (await fetch('/metrics')).json();
        $('sharpe').textContent = m.sharpe.toFixed(2);
        $('mdd').textContent = m.max_drawdown.toFixed(2) + '%';
        const trades = await (await fetch('/trades?limit=20')).json();
        $('trades').innerHTML = trades.reverse().map(t =>
          '<tr><td>' + t.timestamp + '</td><td>' + t.symbol + '</td><td>' + t.side +
          '</td><td>' + t.amount + '</td><td>' + t.price + '</td></tr>').join('');
      } catch (e) {}
    }

    fetch('/status').then(r => r.json()).then(s => render({
      equity: s.equity, mode: s.mode, paused: s.paused, strategy: s.strategy,
      open_positions: (s.open_positions || []).length, daily_loss_pct: 0, prices: {},
    })).catch(() => {});

    const es = new EventSource('/status/stream');
    es.addEventListener('status', (e) => { render(JSON.parse(e.data)); refresh(); });
    refresh();
    setInterval(refresh, 60000);
  </script>
</body>
</html>
`
