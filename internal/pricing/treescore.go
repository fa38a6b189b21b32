package pricing

// TreeScore estimates removal work volume: height * dbh² + canopyRadius².
// Height and canopy radius are in feet, dbh in inches.
func TreeScore(height, dbh, canopyRadius float64) (float64, error) {
	if err := validateMeasurements(height, dbh, canopyRadius); err != nil {
		return 0, err
	}
	return height*dbh*dbh + canopyRadius*canopyRadius, nil
}

// TrimScore estimates trimming work volume:
// height * dbh * canopyRadius² * (percentToTrim / 100).
func TrimScore(height, dbh, canopyRadius, percentToTrim float64) (float64, error) {
	if err := validateMeasurements(height, dbh, canopyRadius); err != nil {
		return 0, err
	}
	if err := ValidateTrimPercent(percentToTrim); err != nil {
		return 0, err
	}
	return height * dbh * canopyRadius * canopyRadius * (percentToTrim / 100), nil
}

// CrownSpread is the full canopy diameter.
func CrownSpread(canopyRadius float64) float64 {
	return canopyRadius * 2
}

// ValidateTrimPercent checks that a trim percentage lies in [0,100].
func ValidateTrimPercent(percent float64) error {
	if err := requireNonNegative("percentToTrim", percent); err != nil {
		return err
	}
	if percent > 100 {
		return &InputError{Field: "percentToTrim", Reason: "must not exceed 100"}
	}
	return nil
}

func validateMeasurements(height, dbh, canopyRadius float64) error {
	if err := requireNonNegative("height", height); err != nil {
		return err
	}
	if err := requireNonNegative("dbh", dbh); err != nil {
		return err
	}
	return requireNonNegative("canopyRadius", canopyRadius)
}
