package mkvsubs

import (
	"context"
	"path"
	"strings"
)

// FontFile is an embedded font attachment.
type FontFile struct {
	Name string
	Data []byte
}

// fontMIMETypes is the closed set of MIME types recognized as fonts, plus the
// "application/font-" prefix handled in isFontAttachment.
var fontMIMETypes = map[string]bool{
	"font/ttf":                    true,
	"font/otf":                    true,
	"font/woff":                   true,
	"font/woff2":                  true,
	"font/sfnt":                   true,
	"application/x-truetype-font": true,
	"application/vnd.ms-opentype": true,
	"application/font-sfnt":       true,
	"application/x-font-ttf":      true,
	"application/x-font-otf":      true,
}

// fontExtensions is the file-name fallback for attachments muxed with a
// generic MIME type such as application/octet-stream.
var fontExtensions = map[string]bool{
	".ttf":   true,
	".otf":   true,
	".woff":  true,
	".woff2": true,
}

// isFontAttachment reports whether an attachment is a font, by MIME type
// (case-insensitive) or by the file name's last extension.
func isFontAttachment(name, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if fontMIMETypes[mimeType] || strings.HasPrefix(mimeType, "application/font-") {
		return true
	}
	return fontExtensions[strings.ToLower(path.Ext(name))]
}

// parseAttachments reads the Attachments element at the absolute offset off
// and returns the embedded fonts. Non-font attachments are dropped.
func parseAttachments(ctx context.Context, r *RangeReader, off int64) ([]FontFile, error) {
	el, err := peekElement(ctx, r, off)
	if err != nil || el.id != IDAttachments || el.unknownSize {
		// Attachments are optional; a broken element just yields no fonts.
		return nil, nil
	}

	data, err := r.ReadAt(ctx, el.dataOffset, el.size)
	if err != nil {
		return nil, err
	}

	var fonts []FontFile
	w := newChildWalker(data, 0, int64(len(data)))
	for child, fileData, ok := w.next(); ok; child, fileData, ok = w.next() {
		if child.id != IDAttachedFile {
			continue
		}

		var name, mimeType string
		var raw []byte
		fw := newChildWalker(fileData, 0, int64(len(fileData)))
		for f, d, okFile := fw.next(); okFile; f, d, okFile = fw.next() {
			switch f.id {
			case IDFileName:
				name = readUTF8(d)
			case IDFileMimeType:
				mimeType = readUTF8(d)
			case IDFileData:
				raw = copyBytes(d)
			}
		}

		if raw != nil && isFontAttachment(name, mimeType) {
			fonts = append(fonts, FontFile{Name: name, Data: raw})
		}
	}
	return fonts, nil
}
