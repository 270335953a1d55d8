package server

// reloadScript is the browser side of live reload. It reconnects with a
// fixed delay and handles every UpdateMessage type.
const reloadScript = `(() => {
  if (window.__SITEGRAPH_RELOAD__) return;
  window.__SITEGRAPH_RELOAD__ = true;

  const overlayId = "sitegraph-error-overlay";

  function reloadStyles(target) {
    const links = document.querySelectorAll('link[rel="stylesheet"]');
    links.forEach((link) => {
      const url = new URL(link.href, location.href);
      if (url.origin !== location.origin) return;
      if (target && !url.pathname.startsWith(target.replace(/\.css$/, ""))) return;
      url.searchParams.set("sitegraph", Date.now().toString());
      link.href = url.toString();
    });
  }

  function clearOverlay() {
    const el = document.getElementById(overlayId);
    if (el) el.remove();
  }

  function showOverlay(html) {
    clearOverlay();
    const wrap = document.createElement("div");
    wrap.innerHTML = html;
    if (wrap.firstElementChild) document.body.appendChild(wrap.firstElementChild);
  }

  function connect() {
    const proto = location.protocol === "https:" ? "wss:" : "ws:";
    const ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onmessage = (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch (_) { return; }
      switch (msg.type) {
        case "css_reload": reloadStyles(msg.target); break;
        case "full_reload": location.reload(); break;
        case "build_error": showOverlay(msg.content); break;
        case "build_success": clearOverlay(); break;
      }
    };
    ws.onclose = () => setTimeout(connect, 1000);
  }

  connect();
})();
`
