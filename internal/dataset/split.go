package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// #region split

// Splits holds the three collections produced from one record list.
type Splits struct {
	Train      []Record
	Validation []Record
	Test       []Record
}

// Split cuts records in order: the first floor(n*trainRatio) go to Train,
// the next floor(n*validationRatio) to Validation, the rest to Test. The
// returned slices share no backing array with records.
func Split(records []Record, trainRatio, validationRatio float64) (Splits, error) {
	if trainRatio < 0 || validationRatio < 0 || trainRatio+validationRatio > 1 {
		return Splits{}, fmt.Errorf("invalid split ratios train=%.2f validation=%.2f", trainRatio, validationRatio)
	}
	n := len(records)
	trainSize := int(math.Floor(float64(n) * trainRatio))
	valSize := int(math.Floor(float64(n) * validationRatio))

	return Splits{
		Train:      append([]Record{}, records[:trainSize]...),
		Validation: append([]Record{}, records[trainSize:trainSize+valSize]...),
		Test:       append([]Record{}, records[trainSize+valSize:]...),
	}, nil
}

// Shuffle returns a shuffled copy of records.
func Shuffle(records []Record, rng *rand.Rand) []Record {
	out := append([]Record{}, records...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SaveSplits writes all three collections.
func (s *Store) SaveSplits(sp Splits) error {
	for _, c := range []struct {
		name    Collection
		records []Record
	}{
		{Train, sp.Train},
		{Validation, sp.Validation},
		{Test, sp.Test},
	} {
		if err := s.Save(c.name, c.records); err != nil {
			return err
		}
	}
	return nil
}

// #endregion split
