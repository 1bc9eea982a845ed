package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fastlease/deal-ingest/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		docType  string
		title    string
		filename string
		want     model.Category
	}{
		{"passport", "Passport", "", "AHMED_PASSPORT.pdf", model.CategoryClient},
		{"emirates id variants", "", "", "emirates-id-front.pdf", model.CategoryClient},
		{"driving license beats plate", "Driving License", "", "license.pdf", model.CategoryClient},
		{"mulkia", "", "Mulkia", "scan001.pdf", model.CategoryVehicle},
		{"registration", "Vehicle Registration Card", "", "reg.pdf", model.CategoryVehicle},
		{"insurance", "", "", "insurance_policy.pdf", model.CategoryVehicle},
		{"chassis", "VIN Verification", "", "doc.pdf", model.CategoryVehicle},
		{"lease agreement", "Lease Agreement", "", "doc.pdf", model.CategoryDeal},
		{"invoice", "", "Tax Invoice", "scan.pdf", model.CategoryDeal},
		{"payment schedule", "", "", "payment_schedule.pdf", model.CategoryDeal},
		{"filename only", "", "", "quotation_v2.pdf", model.CategoryDeal},
		{"case insensitive", "PASSPORT", "", "", model.CategoryClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.docType, tt.title, tt.filename))
		})
	}
}

func TestClassifyClientBeatsVehicle(t *testing.T) {
	// "driver" matches client before "gps" can match vehicle.
	assert.Equal(t, model.CategoryClient, Classify("driver gps report", "", ""))
}

func TestClassifySubstringFallback(t *testing.T) {
	assert.Equal(t, model.CategoryVehicle, Classify("vehicle misc", "", "unknown.pdf"))
	assert.Equal(t, model.CategoryClient, Classify("client misc", "", "unknown.pdf"))
}

func TestClassifyDefaultsToDeal(t *testing.T) {
	assert.Equal(t, model.CategoryDeal, Classify("", "", ""))
	assert.Equal(t, model.CategoryDeal, Classify("mystery", "untitled", "scan_0001.pdf"))
}
