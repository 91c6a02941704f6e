package valuation

import "time"

// Valuation is the verdict of comparing the predicted price with the asking price.
type Valuation string

const (
	Undervalued Valuation = "undervalued"
	Overvalued  Valuation = "overvalued"
)

// HouseFeatures is the per-request feature set. Price is the optional asking price.
// PrevSoldDate, City, State and Zip are only read by the boosted model.
type HouseFeatures struct {
	Price         *float64
	SquareFootage float64
	Bedrooms      int
	Bathrooms     int
	Age           int
	Latitude      float64
	Longitude     float64

	PrevSoldDate time.Time
	City         string
	State        string
	Zip          string
}

type RegressionPlot struct {
	X []int     `json:"x"`
	Y []float64 `json:"y"`
}

type ROCData struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

type PredictionResult struct {
	PredictedPrice float64        `json:"predicted_price"`
	Valuation      Valuation      `json:"valuation"`
	StarRating     int            `json:"star_rating"`
	Confidence     float64        `json:"confidence"`
	RegressionPlot RegressionPlot `json:"regression_plot"`
	ROCData        ROCData        `json:"roc_data"`
}
