package webhook

import "net/http"

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>markerd</title>
<style>
body { font-family: sans-serif; margin: 2em; }
#swatch { width: 6em; height: 6em; border-radius: 50%; border: 1px solid #888; }
button { margin-right: .5em; }
</style>
</head>
<body>
<h1>markerd</h1>
<div id="swatch"></div>
<pre id="state">connecting...</pre>
<p>
<button onclick="send('clear')">Clear</button>
<button onclick="send('toggle-dimmer')">Toggle dimmer</button>
<button onclick="send('sync')">Sync</button>
</p>
<script>
function send(name) { fetch('/api/commands/' + name, { method: 'POST' }); }
function render(s) {
  document.getElementById('state').textContent = JSON.stringify(s, null, 2);
  var b = s.intended_bulb_state || {};
  var css = '#fff';
  if (b.kind === 'hsb') { css = 'hsl(' + b.hue + ',' + b.saturation + '%,' + (b.brightness / 2) + '%)'; }
  if (b.kind === 'dimmer' && !b.level) { css = '#222'; }
  document.getElementById('swatch').style.background = css;
}
fetch('/api/state').then(function (r) { return r.json(); }).then(render);
var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function (e) { render(JSON.parse(e.data)); };
</script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
