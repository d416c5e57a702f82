// Package protocol translates between 9P2000 frames and typed messages.
//
// 9P2000 is the Plan 9 file protocol. A client sends T-messages (requests),
// a server answers each with the matching R-message (response) or an
// Rerror.
//
// === Frames
//
// Every message is one frame. All integers are little-endian.
//
//   size[4] type[1] tag[2] body
//
// `size` counts the whole frame including itself. `tag` is chosen by the
// client and echoed by the server; NOTAG (0xFFFF) is used by Tversion.
//
// === Body encodings
//
// - `string` is a 2 byte length followed by that many UTF-8 bytes
// - 8 byte integers go out as two 4 byte words, low word first
// - `qid` is type[1] version[4] path[8]
// - `stat` is size[2] type[2] dev[4] qid[13] mode[4] atime[4] mtime[4]
//   length[8] name[s] uid[s] gid[s] muid[s], where size counts the bytes
//   after itself
// - Rstat and Twstat put a further n[2] in front of the stat record
//
// === Version negotiation
//
// The first exchange on a connection is Tversion/Rversion. The msize they
// carry bounds every later frame in both directions. Session tracks it:
// decoding or encoding either version message updates it.
//
// === Layers
//
// - `FrameReader` turns transport chunks, split anywhere, into frames
// - `Decode` and `Encode` convert between one frame and one Message
// - `Session` pairs a FrameReader with the msize of one connection
// - `Conn` drives a Session over an io.ReadWriter
//
// Type codes that are not in the registry decode to *Raw with an empty
// body and encode back to the same 7 byte header.
//
package protocol
