package probe

// Per-frame functions. They run in an isolated world of each frame and
// return JSON strings.

const pingJS = `() => JSON.stringify(!!(window.__pastewire && window.__pastewire.ready))`

const contextStateJS = `() => {
  const el = document.activeElement;
  let editable = false;
  if (el && document.hasFocus()) {
    if (el.isContentEditable || el.tagName === "TEXTAREA") editable = true;
    else if (el.tagName === "INPUT") {
      const t = (el.type || "text").toLowerCase();
      editable = t === "text" || t === "search" || t === "email" || t === "url";
    }
  }
  const sel = window.getSelection();
  return JSON.stringify({
    isEditable: editable,
    hasSelection: !!sel && sel.toString().length > 0,
  });
}`

const elementInfoJS = `() => {
  const el = document.activeElement;
  const focused = document.hasFocus();
  if (!el || !(el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement)) {
    return JSON.stringify({ success: false, error: "No active editable element", focused });
  }
  if (el instanceof HTMLInputElement) {
    const t = (el.type || "text").toLowerCase();
    if (!["text", "search", "email", "url"].includes(t)) {
      return JSON.stringify({ success: false, error: "Unsupported input type " + t, focused });
    }
  }
  const tag = el.tagName.toLowerCase();
  let selector = tag;
  if (el.id) selector = "#" + CSS.escape(el.id);
  else if (el.name) selector = tag + "[name='" + el.name.replace(/'/g, "\\'") + "']";
  return JSON.stringify({
    success: true,
    selector,
    url: document.location.href,
    tag: el.tagName,
    focused,
  });
}`

const hasJS = `(selector) => {
  try { return JSON.stringify(!!document.querySelector(selector)); }
  catch (e) { return JSON.stringify(false); }
}`

const selectionJS = `() => {
  const sel = window.getSelection();
  return JSON.stringify(sel ? sel.toString() : "");
}`

const setValueJS = `(msg) => {
  let el;
  try { el = document.querySelector(msg.selector); } catch (e) { el = null; }
  if (!el) return JSON.stringify({ found: false });

  el.focus();
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
    : el instanceof HTMLInputElement ? HTMLInputElement.prototype : null;
  const desc = proto && Object.getOwnPropertyDescriptor(proto, "value");
  if (desc && desc.set) desc.set.call(el, msg.payload);
  else el.value = msg.payload;
  if ("defaultValue" in el) el.defaultValue = msg.payload;
  el.setAttribute("value", msg.payload);

  el.dispatchEvent(new Event("input", { bubbles: true }));
  el.dispatchEvent(new Event("change", { bubbles: true }));
  const key = { key: "Enter", code: "Enter", keyCode: 13, which: 13, bubbles: true };
  el.dispatchEvent(new KeyboardEvent("keydown", key));
  el.dispatchEvent(new KeyboardEvent("keyup", key));

  let via = "";
  if (msg.autoSubmit && msg.attemptNumber > 1) {
    const form = el.form || el.closest("form");
    if (form) {
      try {
        if (typeof form.requestSubmit === "function") form.requestSubmit();
        else form.submit();
        via = "form";
      } catch (e) { via = ""; }
    }
    if (!via) {
      for (const s of msg.submitButtons || []) {
        let b = null;
        try { b = document.querySelector(s); } catch (e) { continue; }
        if (b) { b.click(); via = s; break; }
      }
    }
  }
  return JSON.stringify({ found: true, submitted: via !== "", via });
}`

const notifyJS = `(message) => {
  const id = "__pastewire_toast";
  let box = document.getElementById(id);
  if (!box) {
    box = document.createElement("div");
    box.id = id;
    box.style.cssText = "position:fixed;z-index:2147483647;right:16px;bottom:16px;max-width:360px;" +
      "padding:10px 14px;border-radius:6px;background:#222;color:#fff;font:13px sans-serif;" +
      "box-shadow:0 2px 8px rgba(0,0,0,.3)";
    (document.body || document.documentElement).appendChild(box);
  }
  box.textContent = message;
  clearTimeout(box.__t);
  box.__t = setTimeout(() => box.remove(), 4000);
  return JSON.stringify(true);
}`

const promptJS = `(message, def) => new Promise((resolve) => {
  const id = "__pastewire_prompt";
  const old = document.getElementById(id);
  if (old) old.remove();

  const wrap = document.createElement("div");
  wrap.id = id;
  wrap.style.cssText = "position:fixed;inset:0;z-index:2147483647;background:rgba(0,0,0,.35);" +
    "display:flex;align-items:center;justify-content:center;font:14px sans-serif";
  const card = document.createElement("div");
  card.style.cssText = "background:#fff;color:#111;padding:16px;border-radius:8px;min-width:320px";
  const label = document.createElement("div");
  label.textContent = message;
  const input = document.createElement("input");
  input.value = def;
  input.style.cssText = "display:block;width:100%;margin:10px 0;padding:6px;box-sizing:border-box";
  const ok = document.createElement("button");
  ok.textContent = "OK";
  const cancel = document.createElement("button");
  cancel.textContent = "Cancel";
  cancel.style.marginLeft = "8px";
  card.append(label, input, ok, cancel);
  wrap.appendChild(card);
  (document.body || document.documentElement).appendChild(wrap);
  input.focus();
  input.select();

  const done = (answer) => {
    wrap.remove();
    resolve(JSON.stringify(answer));
  };
  ok.addEventListener("click", () => done({ ok: true, value: input.value }));
  cancel.addEventListener("click", () => done({ ok: false }));
  input.addEventListener("keydown", (e) => {
    if (e.key === "Enter") done({ ok: true, value: input.value });
    if (e.key === "Escape") done({ ok: false });
  });
})`

const dismissPromptJS = `() => {
  const el = document.getElementById("__pastewire_prompt");
  if (el) el.remove();
  return JSON.stringify(true);
}`
