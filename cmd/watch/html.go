package watch

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>sequencer watch</title>
<style>
  body { font-family: sans-serif; margin: 0; display: flex; height: 100vh; }
  #graph { flex: 3; overflow: auto; padding: 1em; }
  #side { flex: 1; border-left: 1px solid #ddd; padding: 1em; overflow: auto; font-size: 12px; }
  #summary { white-space: pre-wrap; }
  #log { list-style: none; padding: 0; font-family: monospace; }
  .failed { color: #b00020; }
</style>
<script src="https://unpkg.com/@viz-js/viz@3.2.4/lib/viz-standalone.js"></script>
</head>
<body>
<div id="graph">Waiting for the first compilation...</div>
<div id="side">
  <h3>Run</h3>
  <div id="summary"></div>
  <h3>Scheduler</h3>
  <ul id="log"></ul>
</div>
<script>
  const graph = document.getElementById("graph");
  const summary = document.getElementById("summary");
  const log = document.getElementById("log");
  const source = new EventSource("/events");
  let viz = null;
  Viz.instance().then(v => { viz = v; });

  source.addEventListener("graph", e => {
    if (!viz) { return; }
    graph.replaceChildren(viz.renderSVGElement(e.data));
  });
  source.addEventListener("summary", e => {
    const s = JSON.parse(e.data);
    const units = (s.units || []).map(u => u.state + " " + u.count).join(", ");
    summary.textContent = "run " + s.run_id + "\n" + units + (s.error ? "\nfailed: " + s.error : "\nok");
    summary.className = s.error ? "failed" : "";
    log.replaceChildren();
  });
  source.addEventListener("scheduler", e => {
    const ev = JSON.parse(e.data);
    const item = document.createElement("li");
    item.textContent = [ev.kind, ev.target, ev.purpose, ev.phase, ev.error].filter(Boolean).join(" ");
    log.prepend(item);
    while (log.childElementCount > 200) { log.lastChild.remove(); }
  });
</script>
</body>
</html>
`
