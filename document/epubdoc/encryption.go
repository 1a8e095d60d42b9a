package epubdoc

import (
	"encoding/xml"
	"errors"
	"strings"
)

// ErrDRMProtected marks an archive whose content is encrypted. Font
// obfuscation is not DRM and does not trigger it.
var ErrDRMProtected = errors.New("epub: drm-protected content")

type encryptionXML struct {
	XMLName       xml.Name `xml:"encryption"`
	EncryptedData []struct {
		EncryptionMethod struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
		CipherData struct {
			CipherReference struct {
				URI string `xml:"URI,attr"`
			} `xml:"CipherReference"`
		} `xml:"CipherData"`
	} `xml:"EncryptedData"`
}

// checkEncryption rejects archives whose reading content is encrypted.
// Adobe ADEPT rights files are an immediate reject; encryption.xml is
// parsed so font obfuscation entries pass while encrypted content
// documents do not.
func checkEncryption(a *archive) error {
	if a.has("META-INF/rights.xml") {
		return ErrDRMProtected
	}
	data, err := a.read("META-INF/encryption.xml")
	if err != nil {
		// No encryption manifest at all.
		return nil
	}

	var enc encryptionXML
	if err := xml.Unmarshal(data, &enc); err != nil {
		// Unreadable manifest: assume the worst.
		return ErrDRMProtected
	}

	for _, ed := range enc.EncryptedData {
		if isFontObfuscation(ed.EncryptionMethod.Algorithm) {
			continue
		}
		if isContentURI(ed.CipherData.CipherReference.URI) {
			return ErrDRMProtected
		}
	}
	return nil
}

// isFontObfuscation recognizes the Adobe and IDPF font mangling
// algorithms, which protect fonts from casual extraction rather than
// the book from reading.
func isFontObfuscation(algorithm string) bool {
	switch algorithm {
	case "http://www.idpf.org/2008/embedding", "http://ns.adobe.com/pdf/enc#RC":
		return true
	}
	if !strings.Contains(algorithm, "obfuscation") {
		return false
	}
	return strings.Contains(algorithm, "adobe.com") || strings.Contains(algorithm, "idpf.org")
}

// isContentURI reports whether an encrypted resource is a reading
// content document rather than an asset.
func isContentURI(uri string) bool {
	uri = strings.ToLower(uri)
	for _, ext := range []string{".xhtml", ".html", ".htm", ".xml", ".css"} {
		if strings.HasSuffix(uri, ext) {
			return true
		}
	}
	return false
}
