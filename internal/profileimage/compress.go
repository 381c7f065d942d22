package profileimage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	_ "image/png" // decoder para uploads en PNG
)

// MaxIterations es el tope de la búsqueda binaria sobre la calidad JPEG.
const MaxIterations = 6

// CompressResult es el resultado de Compress.
type CompressResult struct {
	Data        []byte
	Quality     int  // calidad JPEG (1..100) del candidato elegido
	Iterations  int  // iteraciones ejecutadas (<= MaxIterations)
	WithinLimit bool // false: ningún candidato entró en max, se devuelve el último
}

// Compress re-codifica data como JPEG buscando la mayor calidad cuyo tamaño
// no supere max. Si ningún candidato entra, devuelve el último (best effort).
func Compress(data []byte, max int) (CompressResult, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return CompressResult{}, fmt.Errorf("profileimage: decode: %w", err)
	}

	var (
		lo, hi = 0.0, 1.0
		best   *CompressResult
		last   CompressResult
		buf    bytes.Buffer
	)
	for i := 1; i <= MaxIterations; i++ {
		q := (lo + hi) / 2
		quality := jpegQuality(q)

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return CompressResult{}, fmt.Errorf("profileimage: encode q=%d: %w", quality, err)
		}
		last = CompressResult{
			Data:       append([]byte(nil), buf.Bytes()...),
			Quality:    quality,
			Iterations: i,
		}

		if buf.Len() <= max {
			c := last
			c.WithinLimit = true
			best = &c
			lo = q
		} else {
			hi = q
		}
	}

	if best != nil {
		best.Iterations = last.Iterations
		return *best, nil
	}
	return last, nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
