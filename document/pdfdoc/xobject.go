package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/ccitt"
	xdraw "golang.org/x/image/draw"
)

// errUnsupportedImage marks image encodings the compositor cannot turn
// into pixels. The page render skips such images and keeps going.
var errUnsupportedImage = errors.New("pdfdoc: unsupported image encoding")

// Form XObjects can nest; past this depth a reference cycle is more
// likely than a real document.
const maxFormDepth = 8

// drawImages composites the page's image XObjects onto the canvas.
// Scanned documents carry each page as one large image, so this is the
// path that makes them readable. Any failure leaves the canvas with
// whatever was drawn before it.
func (d *Document) drawImages(canvas *image.Gray, page int, pageH float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return
	}

	pageDict, _, attrs, err := d.ctx.PageDict(page+1, false)
	if err != nil || pageDict == nil {
		return
	}
	var res types.Dict
	if attrs != nil {
		res = attrs.Resources
	}
	content := contentBytes(d.ctx, pageDict["Contents"])
	if len(content) == 0 {
		return
	}
	placeImages(d.ctx, canvas, content, res, identity(), pageH, 0)
}

// placeImages walks one content stream and draws every image XObject
// it paints. Form XObjects recurse with their own resources and
// matrix.
func placeImages(ctx *model.Context, canvas *image.Gray, content []byte, res types.Dict, base matrix, pageH float64, depth int) {
	if depth > maxFormDepth {
		return
	}
	walkOps(parseOps(content), base, func(name string, ctm matrix) {
		sd := namedXObject(ctx, res, name)
		if sd == nil {
			return
		}
		switch subtype(sd.Dict) {
		case "Image":
			img, err := imageFromStream(ctx, sd)
			if err != nil {
				return
			}
			blitImage(canvas, img, ctm, pageH)
		case "Form":
			if err := sd.Decode(); err != nil {
				return
			}
			inner := res
			if fr := resolveDict(ctx, sd.Dict["Resources"]); fr != nil {
				inner = fr
			}
			placeImages(ctx, canvas, sd.Content, inner, formMatrix(sd.Dict).mul(ctm), pageH, depth+1)
		}
	})
}

// blitImage scales src into the device region the matrix assigns to
// the image unit square. Placement uses the axis-aligned bounds of the
// transformed square, so rotated or sheared placements draw upright in
// their bounding box.
func blitImage(canvas *image.Gray, src image.Image, ctm matrix, pageH float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := ctm.apply(corner[0], corner[1])
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}

	r := image.Rect(
		int(math.Floor(minX)), int(math.Floor(pageH-maxY)),
		int(math.Ceil(maxX)), int(math.Ceil(pageH-minY)),
	)
	if r.Dx() < 1 || r.Dy() < 1 || !r.Overlaps(canvas.Bounds()) {
		return
	}
	xdraw.BiLinear.Scale(canvas, r, src, src.Bounds(), xdraw.Src, nil)
}

// imageFromStream decodes an image XObject into pixels. JPEG payloads
// go through image/jpeg and CCITT fax data through x/image/ccitt;
// everything else relies on pdfcpu's stream filters, with the raw
// samples interpreted per ColorSpace and BitsPerComponent. JBIG2 and
// JPEG 2000 are not supported.
func imageFromStream(ctx *model.Context, sd *types.StreamDict) (image.Image, error) {
	w, okW := dictInt(ctx, sd.Dict, "Width")
	h, okH := dictInt(ctx, sd.Dict, "Height")
	if !okW || !okH || w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: missing dimensions", errUnsupportedImage)
	}

	switch name := lastFilter(sd); name {
	case "DCTDecode":
		if len(sd.FilterPipeline) > 1 {
			return nil, fmt.Errorf("%w: layered %s", errUnsupportedImage, name)
		}
		return jpeg.Decode(bytes.NewReader(sd.Raw))
	case "JPXDecode", "JBIG2Decode":
		return nil, fmt.Errorf("%w: %s", errUnsupportedImage, name)
	}

	mask := dictBool(ctx, sd.Dict, "ImageMask", false)
	bpc := 8
	if v, ok := dictInt(ctx, sd.Dict, "BitsPerComponent"); ok {
		bpc = v
	}
	comps := 1
	if mask {
		// Stencil masks are one bit deep with the zero bit painting.
		bpc = 1
	} else {
		var err error
		comps, err = colorComponents(ctx, sd.Dict)
		if err != nil {
			return nil, err
		}
	}

	var samples []byte
	if lastFilter(sd) == "CCITTFaxDecode" {
		if len(sd.FilterPipeline) > 1 {
			return nil, fmt.Errorf("%w: layered CCITTFaxDecode", errUnsupportedImage)
		}
		data, err := ccittSamples(ctx, sd, w, h)
		if err != nil {
			return nil, err
		}
		samples, bpc, comps = data, 1, 1
	} else {
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("decoding image stream: %w", err)
		}
		samples = sd.Content
	}

	return grayFromSamples(samples, w, h, bpc, comps, decodeInverts(ctx, sd.Dict))
}

// ccittSamples decodes CCITT group 3/4 fax data into one-bit rows.
// Columns defaults to the image width rather than the fax standard's
// 1728, since the two disagreeing means a malformed file.
func ccittSamples(ctx *model.Context, sd *types.StreamDict, w, h int) ([]byte, error) {
	var parms types.Dict
	if n := len(sd.FilterPipeline); n > 0 {
		parms = sd.FilterPipeline[n-1].DecodeParms
	}

	k := 0
	cols, rows := w, h
	if v, ok := dictInt(ctx, parms, "K"); ok {
		k = v
	}
	if v, ok := dictInt(ctx, parms, "Columns"); ok && v > 0 {
		cols = v
	}
	if v, ok := dictInt(ctx, parms, "Rows"); ok && v > 0 {
		rows = v
	}
	if cols != w {
		return nil, fmt.Errorf("%w: fax columns %d for width %d", errUnsupportedImage, cols, w)
	}

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Invert: dictBool(ctx, parms, "BlackIs1", false),
		Align:  dictBool(ctx, parms, "EncodedByteAlign", false),
	}

	data, err := io.ReadAll(ccitt.NewReader(bytes.NewReader(sd.Raw), ccitt.MSB, sf, cols, rows, opts))
	if err != nil {
		return nil, fmt.Errorf("decoding fax data: %w", err)
	}
	return data, nil
}

// grayFromSamples converts decoded image samples to gray pixels.
// Multi-component samples are reduced with BT.601 luma weights.
func grayFromSamples(samples []byte, w, h, bpc, comps int, invert bool) (*image.Gray, error) {
	switch {
	case comps == 1 && (bpc == 1 || bpc == 2 || bpc == 4 || bpc == 8 || bpc == 16):
	case (comps == 3 || comps == 4) && bpc == 8:
	default:
		return nil, fmt.Errorf("%w: %d components at %d bits", errUnsupportedImage, comps, bpc)
	}

	rowBytes := (w*comps*bpc + 7) / 8
	if len(samples) < rowBytes*h {
		return nil, fmt.Errorf("%w: %d sample bytes for %dx%d", errUnsupportedImage, len(samples), w, h)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	maxVal := uint32(1)<<bpc - 1
	for y := 0; y < h; y++ {
		row := samples[y*rowBytes:]
		for x := 0; x < w; x++ {
			var g uint32
			switch {
			case comps == 1 && bpc == 16:
				g = uint32(row[2*x])
			case comps == 1 && bpc == 8:
				g = uint32(row[x])
			case comps == 1:
				shift := 8 - bpc - (x*bpc)%8
				v := uint32(row[(x*bpc)/8]>>shift) & maxVal
				g = v * 255 / maxVal
			case comps == 3:
				r, gr, b := uint32(row[3*x]), uint32(row[3*x+1]), uint32(row[3*x+2])
				g = (299*r + 587*gr + 114*b) / 1000
			default:
				c, m, yl, k := uint32(row[4*x]), uint32(row[4*x+1]), uint32(row[4*x+2]), uint32(row[4*x+3])
				r := (255 - c) * (255 - k) / 255
				gr := (255 - m) * (255 - k) / 255
				b := (255 - yl) * (255 - k) / 255
				g = (299*r + 587*gr + 114*b) / 1000
			}
			if invert {
				g = 255 - g
			}
			img.Pix[y*img.Stride+x] = uint8(g)
		}
	}
	return img, nil
}

// contentBytes returns a page's decoded content stream, concatenating
// the parts when Contents is an array. A separator keeps operators
// from fusing across part boundaries.
func contentBytes(ctx *model.Context, obj types.Object) []byte {
	switch v := obj.(type) {
	case types.IndirectRef:
		if sd := decodedStream(ctx, v); sd != nil {
			return sd.Content
		}
	case *types.IndirectRef:
		if v != nil {
			return contentBytes(ctx, *v)
		}
	case types.Array:
		var buf bytes.Buffer
		for _, el := range v {
			part := contentBytes(ctx, el)
			if len(part) == 0 {
				continue
			}
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(part)
		}
		return buf.Bytes()
	}
	return nil
}

// namedXObject resolves a Do operand through the resource dictionary.
// The stream comes back undecoded so the image path can route encoded
// payloads to their native decoders.
func namedXObject(ctx *model.Context, res types.Dict, name string) *types.StreamDict {
	if res == nil {
		return nil
	}
	xobjs := resolveDict(ctx, res["XObject"])
	if xobjs == nil {
		return nil
	}
	obj, ok := xobjs[name]
	if !ok {
		return nil
	}
	return resolveStream(ctx, obj)
}

// colorComponents maps the ColorSpace entry to a sample component
// count. Indexed palettes and separation spaces are not rendered.
func colorComponents(ctx *model.Context, d types.Dict) (int, error) {
	obj, ok := d["ColorSpace"]
	if !ok {
		return 1, nil
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return 0, fmt.Errorf("%w: colorspace: %v", errUnsupportedImage, err)
	}
	switch v := obj.(type) {
	case types.Name:
		return namedComponents(string(v))
	case types.Array:
		if len(v) == 0 {
			break
		}
		name, _ := v[0].(types.Name)
		switch string(name) {
		case "ICCBased":
			if len(v) > 1 {
				if sd := resolveStream(ctx, v[1]); sd != nil {
					if n, ok := dictInt(ctx, sd.Dict, "N"); ok {
						return n, nil
					}
				}
			}
		case "CalGray":
			return 1, nil
		case "CalRGB":
			return 3, nil
		}
	}
	return 0, fmt.Errorf("%w: colorspace", errUnsupportedImage)
}

func namedComponents(name string) (int, error) {
	switch name {
	case "DeviceGray", "CalGray", "G":
		return 1, nil
	case "DeviceRGB", "CalRGB", "RGB":
		return 3, nil
	case "DeviceCMYK", "CMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: colorspace /%s", errUnsupportedImage, name)
}

// decodeInverts reports whether the Decode array flips the sample
// range, as in the [1 0] stencil convention.
func decodeInverts(ctx *model.Context, d types.Dict) bool {
	obj, ok := d["Decode"]
	if !ok {
		return false
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return false
	}
	arr, ok := obj.(types.Array)
	if !ok || len(arr) < 2 {
		return false
	}
	lo, okLo := floatVal(arr[0])
	hi, okHi := floatVal(arr[1])
	return okLo && okHi && lo > hi
}

// formMatrix returns the form's /Matrix entry, defaulting to identity.
func formMatrix(d types.Dict) matrix {
	arr, ok := d["Matrix"].(types.Array)
	if !ok || len(arr) != 6 {
		return identity()
	}
	var m matrix
	for i, o := range arr {
		f, ok := floatVal(o)
		if !ok {
			return identity()
		}
		m[i] = f
	}
	return m
}

func lastFilter(sd *types.StreamDict) string {
	if n := len(sd.FilterPipeline); n > 0 {
		return sd.FilterPipeline[n-1].Name
	}
	return ""
}

func subtype(d types.Dict) string {
	if n, ok := d["Subtype"].(types.Name); ok {
		return string(n)
	}
	return ""
}

func decodedStream(ctx *model.Context, ir types.IndirectRef) *types.StreamDict {
	sd, _, err := ctx.DereferenceStreamDict(ir)
	if err != nil || sd == nil {
		return nil
	}
	if err := sd.Decode(); err != nil {
		return nil
	}
	return sd
}

func resolveStream(ctx *model.Context, obj types.Object) *types.StreamDict {
	switch v := obj.(type) {
	case types.IndirectRef:
		sd, _, err := ctx.DereferenceStreamDict(v)
		if err != nil {
			return nil
		}
		return sd
	case *types.IndirectRef:
		if v != nil {
			return resolveStream(ctx, *v)
		}
	}
	return nil
}

func resolveDict(ctx *model.Context, obj types.Object) types.Dict {
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	if d, ok := obj.(types.Dict); ok {
		return d
	}
	return nil
}

func dictInt(ctx *model.Context, d types.Dict, key string) (int, bool) {
	if d == nil {
		return 0, false
	}
	obj, ok := d[key]
	if !ok {
		return 0, false
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return 0, false
	}
	if n, ok := obj.(types.Integer); ok {
		return int(n), true
	}
	return 0, false
}

func dictBool(ctx *model.Context, d types.Dict, key string, def bool) bool {
	if d == nil {
		return def
	}
	obj, ok := d[key]
	if !ok {
		return def
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return def
	}
	if b, ok := obj.(types.Boolean); ok {
		return bool(b)
	}
	return def
}

func floatVal(obj types.Object) (float64, bool) {
	switch v := obj.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}
