package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VoiceMemo</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>VoiceMemo</h1>
    <article>
        <p id="recorder">Ready</p>
        <button id="record">Record</button>
        <p id="notice" style="color: var(--pico-del-color)"></p>
    </article>
    <article id="playback" hidden>
        <span id="clip"></span> <span id="elapsed"></span>
        <button id="playToggle" class="secondary"></button>
    </article>
    <table>
        <thead><tr><th></th><th>Clip</th><th>Duration</th></tr></thead>
        <tbody id="clips"></tbody>
    </table>
</main>
<script>
let view = null;

function fmt(total) {
    const s = Math.round(total);
    return String(Math.floor(s / 60)).padStart(2, "0") + ":" + String(s % 60).padStart(2, "0");
}

async function post(url, body) {
    const opts = {method: "POST"};
    if (body) {
        opts.headers = {"Content-Type": "application/json"};
        opts.body = JSON.stringify(body);
    }
    const res = await fetch(url, opts);
    if (!res.ok) {
        const data = await res.json().catch(() => ({}));
        document.getElementById("notice").textContent = data.error || res.statusText;
    }
}

function baseName(path) {
    return path.split("/").pop();
}

function render(v) {
    view = v;
    const recorder = document.getElementById("recorder");
    const record = document.getElementById("record");
    if (v.is_recording) {
        recorder.textContent = "Recording " + fmt(v.recording_seconds);
        record.textContent = "Stop";
    } else {
        recorder.textContent = "Ready";
        record.textContent = "Record";
    }
    record.disabled = v.is_playing || !!v.busy;
    document.getElementById("notice").textContent = v.last_error || "";

    const panel = document.getElementById("playback");
    panel.hidden = !v.current_clip;
    if (v.current_clip) {
        document.getElementById("clip").textContent = baseName(v.current_clip);
        document.getElementById("elapsed").textContent = fmt(v.playback_seconds);
        document.getElementById("playToggle").textContent = v.is_playing ? "Stop" : "Play";
    }

    const body = document.getElementById("clips");
    body.innerHTML = "";
    for (const clip of v.clips || []) {
        const row = document.createElement("tr");
        const playing = v.is_playing && v.current_clip === clip.path;
        const button = document.createElement("button");
        button.textContent = playing ? "Stop" : "Play";
        button.disabled = v.is_recording;
        button.onclick = () => playing ? post("/api/play/stop") : post("/api/play", {name: clip.name});
        const cell = document.createElement("td");
        cell.appendChild(button);
        row.appendChild(cell);
        row.insertCell().textContent = clip.name;
        row.insertCell().textContent = clip.duration > 0 ? fmt(clip.duration) : "--:--";
        body.appendChild(row);
    }
}

document.getElementById("record").onclick = () => post(view && view.is_recording ? "/stop" : "/record");
document.getElementById("playToggle").onclick = () => {
    if (view.is_playing) {
        post("/api/play/stop");
    } else {
        post("/api/play", {name: baseName(view.current_clip)});
    }
};

function connect() {
    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = (e) => render(JSON.parse(e.data));
    ws.onclose = () => setTimeout(connect, 2000);
}
connect();
</script>
</body>
</html>`
