package web

import (
	"fmt"
	"net/http"
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// Status page: latest risk metrics, alerts and the pending queue.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>riskdesk</title>
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; --warn:#b7791f; --crit:#c53030; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono','JetBrains Mono',monospace; }
    #app { max-width:1100px; margin:0 auto; background:var(--panel); border:3px solid var(--ink); padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    h1 { font-size:1rem; letter-spacing:.2em; text-transform:uppercase; margin:0 0 1.5rem; }
    h2 { font-size:.8rem; letter-spacing:.1em; text-transform:uppercase; margin:2rem 0 .8rem; }
    .grid { display:grid; grid-template-columns:repeat(auto-fit, minmax(180px, 1fr)); gap:1rem; }
    .stat { border:2px solid var(--ink); background:#fff; padding:.8rem; }
    .stat .label { font-size:.6rem; color:var(--ink-soft); text-transform:uppercase; }
    .stat .value { font-size:1.1rem; margin-top:.3rem; }
    table { width:100%; border-collapse:collapse; background:#fff; font-size:.75rem; }
    th, td { border:1px solid var(--ink); padding:.4rem .6rem; text-align:left; }
    .warning { color:var(--warn); }
    .critical { color:var(--crit); font-weight:700; }
    button { font-family:inherit; font-size:.7rem; border:2px solid var(--ink); background:#fff; cursor:pointer; padding:.2rem .6rem; }
    #status { font-size:.65rem; color:var(--ink-soft); }
  </style>
</head>
<body>
<div id="app">
  <h1>riskdesk <span id="status">connecting</span></h1>
  <div class="grid" id="metrics"></div>
  <h2>Alerts</h2>
  <table><thead><tr><th>Severity</th><th>Kind</th><th>Symbol</th><th>Message</th></tr></thead><tbody id="alerts"></tbody></table>
  <h2>Positions</h2>
  <table><thead><tr><th>Symbol</th><th>Side</th><th>Exposure</th><th>Risk %</th><th>R:R</th></tr></thead><tbody id="positions"></tbody></table>
  <h2>Pending trades</h2>
  <table><thead><tr><th>Symbol</th><th>Type</th><th>Qty</th><th>Value</th><th>Risk</th><th>Expires</th><th></th></tr></thead><tbody id="trades"></tbody></table>
</div>
<script>
const fmt = v => (v === null || v === undefined) ? '-' : Number(v).toLocaleString(undefined, {maximumFractionDigits: 2});
const esc = s => String(s ?? '').replace(/[&<>"]/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;'}[c]));

function renderReport(r) {
  const m = r.metrics;
  const stats = [
    ['Portfolio', m.portfolio_value], ['Buying power', m.buying_power], ['Cash', m.cash_balance],
    ['Daily loss', m.current_daily_loss], ['Max daily loss', m.max_daily_loss], ['Margin risk %', m.portfolio_risk_pct],
    ['Positions', m.open_positions + ' / ' + m.max_positions], ['Margin used', m.margin_used],
  ];
  document.getElementById('metrics').innerHTML = stats.map(([l, v]) =>
    '<div class="stat"><div class="label">' + l + '</div><div class="value">' + (typeof v === 'string' && v.includes('/') ? v : fmt(v)) + '</div></div>').join('');
  document.getElementById('alerts').innerHTML = (r.alerts || []).map(a =>
    '<tr class="' + a.severity + '"><td>' + a.severity + '</td><td>' + a.kind + '</td><td>' + esc(a.symbol) + '</td><td>' + esc(a.message) + '</td></tr>').join('');
  document.getElementById('positions').innerHTML = (r.positions || []).map(p =>
    '<tr><td>' + esc(p.symbol) + '</td><td>' + p.side + '</td><td>' + fmt(p.exposure) + '</td><td>' + fmt(p.risk_pct) + '</td><td>' + fmt(p.risk_reward_ratio) + '</td></tr>').join('');
}

async function loadTrades() {
  const res = await fetch('/api/trades');
  if (!res.ok) return;
  const trades = await res.json();
  document.getElementById('trades').innerHTML = trades.map(t =>
    '<tr><td>' + esc(t.symbol) + '</td><td>' + t.trade_type + '</td><td>' + fmt(t.quantity) + '</td><td>' + fmt(t.estimated_value) + '</td><td>' + t.risk_score +
    '</td><td>' + new Date(t.expires_at).toLocaleTimeString() + '</td><td><button onclick="act(\'' + t.id + '\',\'approve\')">approve</button> <button onclick="act(\'' + t.id + '\',\'reject\')">reject</button></td></tr>').join('');
}

async function act(id, action) {
  await fetch('/api/trades/' + encodeURIComponent(id) + '/' + action, {method: 'POST'});
  loadTrades();
}

const risk = new EventSource('/risk/stream');
risk.addEventListener('risk', e => { renderReport(JSON.parse(e.data)); document.getElementById('status').textContent = 'live'; });
risk.onerror = () => { document.getElementById('status').textContent = 'reconnecting'; };

const trades = new EventSource('/trades/stream');
['pending', 'approved', 'rejected', 'expired'].forEach(ev => trades.addEventListener(ev, loadTrades));
loadTrades();
</script>
</body>
</html>`
