package viewer

import (
	"html/template"

	"webkvm/internal/input"
	"webkvm/internal/network"
)

type pageData struct {
	Device   string
	CanvasID string
	Channels []int
}

func newPageData(device string) pageData {
	channels := make([]int, network.Channels)
	for i := range channels {
		channels[i] = i
	}
	return pageData{
		Device:   device,
		CanvasID: input.CanvasID,
		Channels: channels,
	}
}

var tmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>webkvm - {{.Device}}</title>
    <style>
        body {
            margin: 0;
            background: #0f1115;
            color: #c9d1d9;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
        }
        header {
            display: flex;
            justify-content: space-between;
            padding: 0.5rem 1rem;
            font-size: 0.85rem;
            border-bottom: 1px solid rgba(255,255,255,0.08);
        }
        #stage {
            position: relative;
            max-width: 1280px;
            margin: 1rem auto;
        }
        #channels {
            display: grid;
            grid-template-columns: 1fr 1fr;
            gap: 2px;
        }
        #channels img {
            width: 100%;
            min-height: 120px;
            background: #000;
            display: block;
        }
        #{{.CanvasID}} {
            position: absolute;
            inset: 0;
            width: 100%;
            height: 100%;
            cursor: crosshair;
        }
        .locked { color: #3fb950; }
    </style>
</head>
<body>
    <header>
        <span>Device: {{.Device}}</span>
        <span id="state">connecting</span>
    </header>
    <div id="stage">
        <div id="channels">
            {{range .Channels}}<img id="ch{{.}}" alt="channel {{.}}">
            {{end}}
        </div>
        <canvas id="{{.CanvasID}}"></canvas>
    </div>
    <script>
    (function () {
        const canvas = document.getElementById('{{.CanvasID}}');
        const state = document.getElementById('state');
        const imgs = [{{range .Channels}}document.getElementById('ch{{.}}'),{{end}}];
        let ws = null;
        let loading = 0;
        let wanted = 0;
        let shown = 0;

        function send(type, payload) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: type, payload: payload}));
            }
        }

        function locked() {
            return document.pointerLockElement === canvas;
        }

        // The four slots are only assigned together, once every image of
        // the set has loaded. A set with any failed image is dropped.
        function loadFrames(gen) {
            wanted = Math.max(wanted, gen);
            if (loading > 0) {
                return;
            }
            const next = [];
            let failed = false;
            loading = imgs.length;
            imgs.forEach(function (img, ch) {
                const im = new Image();
                im.onload = im.onerror = function (e) {
                    if (e.type === 'error' || im.naturalWidth === 0) {
                        failed = true;
                    }
                    loading--;
                    if (loading > 0) {
                        return;
                    }
                    if (!failed && gen > shown) {
                        shown = gen;
                        imgs.forEach(function (slot, i) { slot.src = next[i].src; });
                    }
                    if (wanted > gen) {
                        loadFrames(wanted);
                    }
                };
                next[ch] = im;
                im.src = '/frame/' + ch + '?g=' + gen;
            });
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');
            ws.onopen = function () { state.textContent = 'connected'; };
            ws.onclose = function () {
                state.textContent = 'disconnected';
                setTimeout(connect, 1000);
            };
            ws.onmessage = function (ev) {
                const msg = JSON.parse(ev.data);
                const p = msg.payload || {};
                switch (msg.type) {
                case 'session':
                    state.textContent = 'session ' + p.session.substring(0, 8);
                    if (p.generation > 0) { loadFrames(p.generation); }
                    break;
                case 'frames':
                    loadFrames(p.generation);
                    break;
                case 'request_lock':
                    canvas.requestPointerLock();
                    break;
                case 'exit_lock':
                    document.exitPointerLock();
                    break;
                case 'reload':
                    location.reload();
                    break;
                }
            };
        }

        canvas.addEventListener('click', function () {
            if (!locked()) {
                send('activate');
            }
        });

        document.addEventListener('pointerlockchange', function () {
            const el = document.pointerLockElement;
            state.classList.toggle('locked', locked());
            send('lockchange', {element: el ? el.id : ''});
        });

        document.addEventListener('mousemove', function (e) {
            if (locked()) {
                send('input', {kind: 'mousemove', mx: e.movementX, my: e.movementY, ts: Date.now()});
            }
        });

        function click(e) {
            if (locked()) {
                send('input', {kind: 'click', button: e.button, ts: Date.now()});
            }
        }
        document.addEventListener('click', click);
        document.addEventListener('auxclick', click);
        document.addEventListener('contextmenu', function (e) {
            if (locked()) { e.preventDefault(); }
        });

        function key(kind) {
            return function (e) {
                if (!locked()) {
                    return;
                }
                e.preventDefault();
                send('input', {kind: kind, key: e.key, ts: Date.now()});
            };
        }
        document.addEventListener('keydown', key('keydown'));
        document.addEventListener('keyup', key('keyup'));

        connect();
    })();
    </script>
</body>
</html>
`))
