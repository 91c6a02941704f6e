package valuation

const (
	linearBasePrice = 200000
	perSquareFoot   = 100
	perBedroom      = 15000
	perBathroom     = 10000
	perYearOfAge    = 1000
)

// LinearModel is the hand-tuned rule-based price model.
type LinearModel struct{}

func NewLinearModel() LinearModel { return LinearModel{} }

func (LinearModel) Name() string { return "linear" }

func (LinearModel) EstimatePrice(f HouseFeatures) (float64, error) {
	adj := f.SquareFootage*perSquareFoot +
		float64(f.Bedrooms)*perBedroom +
		float64(f.Bathrooms)*perBathroom -
		float64(f.Age)*perYearOfAge
	return linearBasePrice + adj, nil
}
