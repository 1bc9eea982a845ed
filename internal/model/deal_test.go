package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeriveDealID(t *testing.T) {
	a := DeriveDealID("AHMED_ALI_TOYOTA_CAMRY")
	b := DeriveDealID("AHMED_ALI_TOYOTA_CAMRY")
	c := DeriveDealID("SARA_KHAN_NISSAN_PATROL")

	assert.Equal(t, a, b, "same folder must derive the same id")
	assert.NotEqual(t, a, c, "different folders must derive different ids")
	assert.Equal(t, uuid.Version(5), a.Version())
}

func TestDeriveDealIDStable(t *testing.T) {
	// Pinned so an accidental namespace or hashing change is caught.
	assert.Equal(t, "aeace9b2-13ef-53a0-ab93-b0f135c3b6e2", DeriveDealID("AHMED_ALI_TOYOTA_CAMRY").String())
	assert.Equal(t, "d474e975-bc57-5761-a238-75e4217edae3", DeriveDealID("SARA_KHAN_NISSAN_PATROL").String())
}
