package common

// ArchiveContentType is the Content-Type every published archive is stored with.
const ArchiveContentType = "application/zip"

// ArchiveExtension is appended to the content digest to form the object key.
const ArchiveExtension = ".zip"

// Base64 is the only transcoding accepted by source "decode" and target "encode".
const Base64 = "base64"
