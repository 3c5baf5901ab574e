package cdpcontrol

import "github.com/dgnsrekt/replay_capture/internal/types"

const (
	chunkBinding = "__replayCaptureChunk"
	recorderVar  = "__replayCaptureRecorder"
)

func jsSurfaceBox(selector string) string {
	return `(() => {
const el = document.querySelector(` + jsString(selector) + `);
if (!el) return null;
const r = el.getBoundingClientRect();
return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`
}

// jsStartRecorder requests a capture of the current tab with audio and pipes
// MediaRecorder chunks to the Go side through the runtime binding. Chunks are
// sent strictly in order; the final message is {end:true}.
func jsStartRecorder(opts types.StreamOptions) string {
	return `(async () => {
const opts = ` + jsJSON(opts) + `;
const send = window[` + jsString(chunkBinding) + `];
if (typeof send !== "function") throw new Error("capture binding missing");
if (window[` + jsString(recorderVar) + `] && window[` + jsString(recorderVar) + `].state !== "inactive") {
  throw new Error("recorder already running");
}
const stream = await navigator.mediaDevices.getDisplayMedia({
  video: {frameRate: opts.frame_rate, displaySurface: "browser"},
  audio: {suppressLocalAudioPlayback: false},
  preferCurrentTab: true,
  selfBrowserSurface: "include",
  systemAudio: "include",
});
let mime = opts.mime_type;
if (!mime || !MediaRecorder.isTypeSupported(mime)) {
  mime = ["video/webm;codecs=vp9,opus", "video/webm;codecs=vp8,opus", "video/webm"].find((m) => MediaRecorder.isTypeSupported(m)) || "";
}
const recOpts = {videoBitsPerSecond: opts.video_bits_per_second};
if (mime) recOpts.mimeType = mime;
const rec = new MediaRecorder(stream, recOpts);
const toBase64 = (blob) => new Promise((resolve, reject) => {
  const fr = new FileReader();
  fr.onload = () => resolve(String(fr.result).split(",")[1] || "");
  fr.onerror = () => reject(fr.error);
  fr.readAsDataURL(blob);
});
let chain = Promise.resolve();
let seq = 0;
rec.ondataavailable = (e) => {
  if (!e.data || e.data.size === 0) return;
  const blob = e.data;
  chain = chain
    .then(async () => send(JSON.stringify({seq: seq++, data: await toBase64(blob)})))
    .catch((err) => send(JSON.stringify({error: String(err && err.message || err)})));
};
rec.onstop = () => {
  chain = chain.then(() => {
    stream.getTracks().forEach((t) => t.stop());
    send(JSON.stringify({end: true}));
  });
};
rec.onerror = (e) => send(JSON.stringify({error: String(e && e.error || e)}));
window[` + jsString(recorderVar) + `] = rec;
rec.start(opts.timeslice_ms);
return {
  mime_type: rec.mimeType,
  audio_tracks: stream.getAudioTracks().length,
  video_tracks: stream.getVideoTracks().length,
};
})()`
}

func jsStopRecorder() string {
	return `(() => {
const rec = window[` + jsString(recorderVar) + `];
if (!rec || rec.state === "inactive") return false;
rec.requestData();
rec.stop();
return true;
})()`
}
