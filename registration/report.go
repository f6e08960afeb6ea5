package registration

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/xshoji/go-img-reg/transform"
)

// FinalParameters は推定された変換のパラメータと最適化の終了状態を書き出す
func FinalParameters(w io.Writer, result *Result) error {
	if result == nil || result.Transform == nil {
		return errors.New("no registration result to report")
	}

	fmt.Fprintln(w, "Result =")
	switch t := result.Transform.(type) {
	case *transform.Rigid2D:
		writeAngle(w, t.Angle())
		writeCenterAndTranslation(w, t)
	case *transform.Similarity2D:
		fmt.Fprintf(w, " Scale           = %g\n", t.Scale())
		writeAngle(w, t.Angle())
		writeCenterAndTranslation(w, t)
	case *transform.Affine:
		m := t.Matrix()
		offset := t.Offset()
		fmt.Fprintf(w, " Matrix          = [[%g, %g], [%g, %g]]\n", m.At(0, 0), m.At(0, 1), m.At(1, 0), m.At(1, 1))
		fmt.Fprintf(w, " Offset          = %s\n", offset)
		writeCenterAndTranslation(w, t)
		fmt.Fprintf(w, " Equivalent angle = %g (degrees)\n", t.RotationAngle()*180/math.Pi)
		if inv, err := t.Inverse(); err == nil {
			fmt.Fprintf(w, " Inverse         = %s\n", inv)
		}
	default:
		fmt.Fprintf(w, " Transform       = %s\n", t)
	}

	fmt.Fprintf(w, " Iterations      = %d\n", result.Iterations)
	fmt.Fprintf(w, " Metric value    = %g\n", result.Value)
	if levels := max(result.NumberOfLevels, len(result.Levels)); levels > 1 {
		fmt.Fprintf(w, " Level           = %d of %d\n", result.Level+1, levels)
	}
	fmt.Fprintf(w, "Optimizer stop condition: %s\n", result.Stop.Description())
	return nil
}

func writeAngle(w io.Writer, angle float64) {
	fmt.Fprintf(w, " Angle (radians) = %g\n", angle)
	fmt.Fprintf(w, " Angle (degrees) = %g\n", angle*180/math.Pi)
}

func writeCenterAndTranslation(w io.Writer, t transform.Centered) {
	c := t.Center()
	tr := t.Translation()
	fmt.Fprintf(w, " Center X        = %g\n", c.X)
	fmt.Fprintf(w, " Center Y        = %g\n", c.Y)
	fmt.Fprintf(w, " Translation X   = %g\n", tr.X)
	fmt.Fprintf(w, " Translation Y   = %g\n", tr.Y)
}
