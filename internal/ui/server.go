// Package ui serves the live session viewer page.
package ui

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
)

// Handler serves the viewer page. The page talks to the API it is served
// from, so it must be mounted on the API mux.
func Handler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, struct{ Token string }{r.URL.Query().Get("token")}); err != nil {
			logger.Error("render viewer failed", "error", err)
		}
	})
}

// URL is the viewer address for an API listening on port.
func URL(port int, token string) string {
	u := fmt.Sprintf("http://127.0.0.1:%d/", port)
	if token != "" {
		u += "?token=" + template.URLQueryEscaper(token)
	}
	return u
}

// OpenBrowser opens url with the platform's default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()
	return nil
}

var tmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>keytrail</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e2e8f0;
            min-height: 100vh;
            padding: 2rem;
        }
        .container { max-width: 900px; margin: 0 auto; }
        h1 { font-size: 2rem; font-weight: 700; margin-bottom: 1.5rem; color: #a5b4fc; }
        .card {
            background: rgba(255,255,255,0.05);
            border: 1px solid rgba(255,255,255,0.1);
            border-radius: 16px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        .status { display: flex; gap: 1rem; align-items: center; }
        .badge { padding: 0.25rem 0.75rem; border-radius: 999px; background: #334155; font-weight: 600; }
        .badge.RECORDING { background: #b91c1c; }
        .badge.STOPPED { background: #0f766e; }
        button {
            background: #4f46e5; color: white; border: none; border-radius: 8px;
            padding: 0.5rem 1rem; cursor: pointer; font-size: 0.9rem;
        }
        button.secondary { background: #475569; }
        a { color: #a5b4fc; }
        table { width: 100%; border-collapse: collapse; font-family: ui-monospace, monospace; font-size: 0.85rem; }
        th, td { text-align: left; padding: 0.3rem 0.5rem; border-bottom: 1px solid rgba(255,255,255,0.08); }
        #moves { max-height: 60vh; overflow-y: auto; display: block; }
    </style>
</head>
<body>
<div class="container">
    <h1>keytrail</h1>
    <div class="card status">
        <span id="state" class="badge">IDLE</span>
        <span id="count">0 moves</span>
        <button id="toggle">Start recording</button>
        <button class="secondary" id="clear">Clear</button>
        <a id="json" href="#">JSON</a>
        <a id="csv" href="#">CSV</a>
    </div>
    <div class="card">
        <table id="moves">
            <thead><tr><th>Time</th><th>Type</th><th>Details</th></tr></thead>
            <tbody></tbody>
        </table>
    </div>
</div>
<script>
const token = {{.Token}};
const q = token ? '?token=' + encodeURIComponent(token) : '';
const headers = token ? { 'Authorization': 'Bearer ' + token } : {};
let recording = false;
let count = 0;

function setState(s) {
    recording = s.recording;
    count = s.moves;
    const badge = document.getElementById('state');
    badge.textContent = s.state;
    badge.className = 'badge ' + s.state;
    document.getElementById('count').textContent = count + ' moves';
    document.getElementById('toggle').textContent = recording ? 'Stop recording' : 'Start recording';
    const sep = q ? '&' : '?';
    document.getElementById('json').href = '/api/history/export' + q + sep + 'format=json';
    document.getElementById('csv').href = '/api/history/export' + q + sep + 'format=csv';
}

function details(m) {
    const parts = [];
    if (m.x !== null) parts.push('(' + m.x + ', ' + m.y + ')');
    if (m.button_name !== null) parts.push(m.button_name + (m.pressed ? ' down' : ' up'));
    if (m.dx !== null) parts.push('dx=' + m.dx + ' dy=' + m.dy);
    if (m.key_code !== null) parts.push(m.key_code);
    if (m.key_name !== null) parts.push(m.key_name);
    return parts.join(' ');
}

function addMove(m) {
    const row = document.createElement('tr');
    for (const v of [m.timestamp, m.move_type, details(m)]) {
        const td = document.createElement('td');
        td.textContent = v;
        row.appendChild(td);
    }
    const body = document.querySelector('#moves tbody');
    body.insertBefore(row, body.firstChild);
    count++;
    document.getElementById('count').textContent = count + ' moves';
}

function connect() {
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(proto + location.host + '/ws' + q);
    ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type === 'hello' || msg.type === 'state') {
            setState(msg.payload);
            if (msg.payload.state === 'IDLE') document.querySelector('#moves tbody').innerHTML = '';
        } else if (msg.type === 'move') {
            addMove(msg.payload.move);
        }
    };
    ws.onclose = () => setTimeout(connect, 2000);
}

document.getElementById('toggle').onclick = () => {
    fetch('/api/recording/' + (recording ? 'stop' : 'start'), { method: 'POST', headers });
};
document.getElementById('clear').onclick = () => {
    fetch('/api/history', { method: 'DELETE', headers });
};

fetch('/api/history', { headers }).then(r => r.json()).then(h => {
    h.records.forEach(addMove);
    setState({ state: h.state, moves: h.moves, recording: h.state === 'RECORDING' });
});
connect();
</script>
</body>
</html>
`))
