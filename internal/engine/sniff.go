package engine

import (
	"bytes"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// SniffContentType reports the MIME type of raw image bytes, falling back
// to application/octet-stream when the format is not recognized.
func SniffContentType(data []byte) string {
	return sniffType(data).ContentType()
}

// sniffType recognizes the source format from magic bytes. It covers the
// raster formats either backend can load plus the vector types only the
// govips build can rasterize. Unrecognized data reports "".
func sniffType(data []byte) pixelpath.ImageType {
	if len(data) < 12 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return pixelpath.ImageTypeJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return pixelpath.ImageTypePNG
	case bytes.HasPrefix(data, []byte("GIF8")):
		return pixelpath.ImageTypeGIF
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return pixelpath.ImageTypeWEBP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return pixelpath.ImageTypeTIFF
	case bytes.HasPrefix(data, []byte("BM")):
		return pixelpath.ImageTypeBMP
	case bytes.HasPrefix(data, []byte("%PDF")):
		return pixelpath.ImageTypePDF
	case bytes.HasPrefix(data, []byte("\x00\x00\x00\x0cjP  \r\n\x87\n")):
		return pixelpath.ImageTypeJP2K
	case bytes.Equal(data[4:8], []byte("ftyp")):
		return ftypBrand(string(data[8:12]))
	}
	if looksLikeSVG(data) {
		return pixelpath.ImageTypeSVG
	}
	return ""
}

func ftypBrand(brand string) pixelpath.ImageType {
	switch brand {
	case "avif", "avis":
		return pixelpath.ImageTypeAVIF
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "hevm", "hevs", "mif1", "msf1":
		return pixelpath.ImageTypeHEIF
	}
	return ""
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimLeft(head, " \t\r\n")
	if bytes.HasPrefix(head, []byte("<svg")) {
		return true
	}
	return bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg"))
}
