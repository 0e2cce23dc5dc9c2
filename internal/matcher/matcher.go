// Package matcher ordnet Gesichtsdeskriptoren den registrierten Personen zu.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Unknown ist das Label für Gesichter ohne ausreichend nahe Übereinstimmung
const Unknown = "unknown"

// DefaultThreshold ist der Standard-Schwellenwert für die mittlere euklidische Distanz
const DefaultThreshold = 0.5

// ErrNoUsableData wird zurückgegeben, wenn keine einzige Person einen Deskriptor hat
var ErrNoUsableData = errors.New("no usable face data")

// LabeledDescriptors sind alle Deskriptoren einer Person
type LabeledDescriptors struct {
	Label       string
	Descriptors [][]float32
}

// Match ist das Ergebnis eines Abgleichs
type Match struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// IsUnknown gibt an, ob keine Person erkannt wurde
func (m Match) IsUnknown() bool {
	return m.Label == Unknown
}

// String rendert "label (0.42)", die Distanz wird auf zwei Stellen abgeschnitten
func (m Match) String() string {
	if math.IsInf(m.Distance, 0) || math.IsNaN(m.Distance) {
		return m.Label
	}
	d := math.Floor(m.Distance*100) / 100
	return fmt.Sprintf("%s (%s)", m.Label, strconv.FormatFloat(d, 'f', -1, 64))
}

// Matcher ist unveränderlich und kann von mehreren Goroutinen genutzt werden
type Matcher struct {
	labeled   []LabeledDescriptors
	threshold float64
}

// New erstellt einen Matcher. Einträge ohne Deskriptoren werden verworfen.
func New(labeled []LabeledDescriptors, threshold float64) (*Matcher, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	kept := make([]LabeledDescriptors, 0, len(labeled))
	for _, ld := range labeled {
		if ld.Label == "" || len(ld.Descriptors) == 0 {
			continue
		}
		descs := make([][]float32, len(ld.Descriptors))
		for i, d := range ld.Descriptors {
			descs[i] = append([]float32(nil), d...)
		}
		kept = append(kept, LabeledDescriptors{Label: ld.Label, Descriptors: descs})
	}
	if len(kept) == 0 {
		return nil, ErrNoUsableData
	}

	return &Matcher{labeled: kept, threshold: threshold}, nil
}

// Threshold gibt den Schwellenwert zurück
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Labels gibt die Labels in Einfügereihenfolge zurück
func (m *Matcher) Labels() []string {
	labels := make([]string, len(m.labeled))
	for i, ld := range m.labeled {
		labels[i] = ld.Label
	}
	return labels
}

// DescriptorCount gibt die Anzahl aller Deskriptoren zurück
func (m *Matcher) DescriptorCount() int {
	n := 0
	for _, ld := range m.labeled {
		n += len(ld.Descriptors)
	}
	return n
}

// FindBestMatch sucht das Label mit der kleinsten mittleren Distanz.
// Liegt sie nicht unter dem Schwellenwert, ist das Ergebnis Unknown.
func (m *Matcher) FindBestMatch(descriptor []float32) Match {
	best := Match{Label: Unknown, Distance: math.Inf(1)}
	for _, ld := range m.labeled {
		d, ok := meanDistance(ld.Descriptors, descriptor)
		if !ok {
			continue
		}
		if d < best.Distance {
			best = Match{Label: ld.Label, Distance: d}
		}
	}
	if best.Distance >= m.threshold {
		best.Label = Unknown
	}
	return best
}

// meanDistance mittelt über alle Deskriptoren gleicher Dimension
func meanDistance(descriptors [][]float32, query []float32) (float64, bool) {
	var sum float64
	n := 0
	for _, d := range descriptors {
		dist, ok := EuclideanDistance(d, query)
		if !ok {
			continue
		}
		sum += dist
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// EuclideanDistance berechnet die Distanz zweier Vektoren gleicher Länge
func EuclideanDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum), true
}
