package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// pcdFields lists the columns written for a cloud.
func pcdFields(meta MetaData) []string {
	fields := []string{"x", "y", "z"}
	if meta.HasColor {
		fields = append(fields, "rgb")
	}
	if meta.HasNormal {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
	}
	return fields
}

func _colorToPCDInt(pt Data) int {
	if pt == nil || !pt.HasColor() {
		return 255 << 16
	}

	r, g, b := pt.RGB255()
	x := 0

	x |= (int(r) << 16)
	x |= (int(g) << 8)
	x |= (int(b) << 0)
	return x
}

func _pcdIntToColor(c int) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes out a point cloud to a PCD file of the given type. Coordinates are written as
// float32 in the cloud's units.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	meta := cloud.MetaData()
	fields := pcdFields(meta)
	sizes := make([]string, len(fields))
	types := make([]string, len(fields))
	counts := make([]string, len(fields))
	for i, f := range fields {
		sizes[i] = "4"
		types[i] = "F"
		if f == "rgb" {
			types[i] = "I"
		}
		counts[i] = "1"
	}

	var dataType string
	switch outputType {
	case PCDAscii:
		dataType = "ascii"
	case PCDBinary:
		dataType = "binary"
	default:
		return errors.Errorf("unsupported pcd output type %d", outputType)
	}

	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		strings.Join(fields, " "),
		strings.Join(sizes, " "),
		strings.Join(types, " "),
		strings.Join(counts, " "),
		cloud.Size(),
		1,
		cloud.Size(),
		dataType,
	); err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	meta := cloud.MetaData()
	var err error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		values := []float64{pos.X, pos.Y, pos.Z}
		var normal r3.Vector
		if d != nil && d.HasNormal() {
			normal = d.Normal()
		}

		switch pcdtype {
		case PCDBinary:
			buf := make([]byte, 0, 28)
			for _, v := range values {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
			if meta.HasColor {
				buf = binary.LittleEndian.AppendUint32(buf, uint32(_colorToPCDInt(d)))
			}
			if meta.HasNormal {
				for _, v := range []float64{normal.X, normal.Y, normal.Z} {
					buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
				}
			}
			_, err = out.Write(buf)
		case PCDAscii:
			line := fmt.Sprintf("%f %f %f", pos.X, pos.Y, pos.Z)
			if meta.HasColor {
				line += fmt.Sprintf(" %d", _colorToPCDInt(d))
			}
			if meta.HasNormal {
				line += fmt.Sprintf(" %f %f %f", normal.X, normal.Y, normal.Z)
			}
			_, err = fmt.Fprintln(out, line)
		}
		return err == nil
	})
	return err
}

// WriteToPCDFile writes the cloud to a binary PCD file at path.
func WriteToPCDFile(cloud PointCloud, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, PCDBinary); err != nil {
		return err
	}
	return w.Flush()
}

type pcdHeader struct {
	fields []string
	points int
	data   PCDType
}

func (h *pcdHeader) index(name string) int {
	for i, f := range h.fields {
		if f == name {
			return i
		}
	}
	return -1
}

func readPCDHeader(in *bufio.Reader) (*pcdHeader, error) {
	header := &pcdHeader{}
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "reading pcd header")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field, value, _ := strings.Cut(line, " ")
		switch field {
		case "VERSION":
			if value != ".7" && value != "0.7" {
				return nil, errors.Errorf("unsupported pcd version %s", value)
			}
		case "FIELDS":
			header.fields = strings.Fields(value)
			if len(header.fields) < 3 || header.fields[0] != "x" || header.fields[1] != "y" || header.fields[2] != "z" {
				return nil, errors.Errorf("unsupported pcd fields %s", value)
			}
		case "SIZE":
			for _, s := range strings.Fields(value) {
				if s != "4" {
					return nil, errors.Errorf("unsupported pcd field size %s", s)
				}
			}
		case "POINTS":
			header.points, err = strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid POINTS field %s", value)
			}
		case "DATA":
			switch value {
			case "ascii":
				header.data = PCDAscii
			case "binary":
				header.data = PCDBinary
			default:
				return nil, errors.Errorf("unsupported pcd data type %s", value)
			}
			if header.fields == nil {
				return nil, errors.New("pcd header has no FIELDS line")
			}
			return header, nil
		}
	}
}

// ReadPCD reads a PCD file written by ToPCD.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}
	rgbIdx := header.index("rgb")
	normalIdx := header.index("normal_x")

	pc := NewWithPrealloc(header.points)
	values := make([]float64, len(header.fields))
	raw := make([]byte, 4*len(header.fields))
	for i := 0; i < header.points; i++ {
		switch header.data {
		case PCDAscii:
			line, err := in.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			tokens := strings.Fields(line)
			if len(tokens) != len(header.fields) {
				return nil, errors.Errorf("point %d has %d fields, expected %d", i, len(tokens), len(header.fields))
			}
			for j, tok := range tokens {
				if values[j], err = strconv.ParseFloat(tok, 64); err != nil {
					return nil, errors.Wrapf(err, "point %d", i)
				}
			}
		case PCDBinary:
			if _, err := io.ReadFull(in, raw); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			for j := range header.fields {
				bits := binary.LittleEndian.Uint32(raw[4*j:])
				if j == rgbIdx {
					values[j] = float64(bits)
				} else {
					values[j] = float64(math.Float32frombits(bits))
				}
			}
		}

		var d Data
		if rgbIdx >= 0 {
			d = NewColoredData(_pcdIntToColor(int(values[rgbIdx])))
		}
		if normalIdx >= 0 && normalIdx+2 < len(values) {
			n := r3.Vector{X: values[normalIdx], Y: values[normalIdx+1], Z: values[normalIdx+2]}
			if d == nil {
				d = NewNormalData(n)
			} else {
				d.SetNormal(n)
			}
		}
		if err := pc.Set(r3.Vector{X: values[0], Y: values[1], Z: values[2]}, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// NewFromPCDFile reads a PCD file from disk.
func NewFromPCDFile(path string) (PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadPCD(f)
}
