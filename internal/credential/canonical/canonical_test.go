package canonical

import (
	"testing"

	"rxcred/internal/credential/models"
	rxmodels "rxcred/internal/prescription/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCredential() *models.Credential {
	return &models.Credential{
		Context:        []string{models.ContextV1, models.ContextPrescription},
		ID:             "urn:uuid:5f1c8a44-9276-4b7e-9f0e-05a2e3e5b111",
		Type:           []string{models.TypeVerifiableCredential, models.TypePrescriptionCredential},
		Issuer:         "did:web:hospital.example:dr-jones",
		IssuanceDate:   "2026-03-01T09:00:00Z",
		ExpirationDate: "2026-03-31T09:00:00Z",
		CredentialSubject: models.CredentialSubject{
			ID: "did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH",
			Prescription: models.PrescriptionClaim{
				PrescriptionID: "8a9f1c2e-0b3d-4e5f-8a7b-1c2d3e4f5a6b",
				Medications: []rxmodels.MedicationLine{
					{Name: "Amoxicillin", Strength: "500mg", Quantity: 21, Instructions: "one capsule three times daily"},
				},
			},
		},
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	cred := sampleCredential()

	first, err := Serialize(cred)
	require.NoError(t, err)
	second, err := Serialize(cred)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSerialize_SortsKeys(t *testing.T) {
	got, err := canonicalizeJSON([]byte(`{"b":1,"a":{"d":true,"c":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":"x","d":true},"b":1}`, string(got))
}

func TestSerialize_NumberForms(t *testing.T) {
	got, err := canonicalizeJSON([]byte(`{"n":1.0,"m":21,"z":0.5}`))
	require.NoError(t, err)
	assert.Equal(t, `{"m":21,"n":1,"z":0.5}`, string(got))
}

func TestSerialize_ExponentForms(t *testing.T) {
	// RFC 8785 uses the ECMAScript rendering: positive exponents carry an
	// explicit sign.
	got, err := canonicalizeJSON([]byte(`{"big":1e21,"huge":1.25e22,"tiny":1e-7}`))
	require.NoError(t, err)
	assert.Equal(t, `{"big":1e+21,"huge":1.25e+22,"tiny":1e-7}`, string(got))
}

func TestCanonicalize_RejectsTrailingData(t *testing.T) {
	_, err := canonicalizeJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestSigningInput_ExcludesProof(t *testing.T) {
	cred := sampleCredential()
	unsigned, err := SigningInput(cred)
	require.NoError(t, err)

	cred.Proof = &models.Proof{
		Type:               models.ProofTypeEd25519,
		Created:            "2026-03-01T09:00:01Z",
		ProofPurpose:       models.ProofPurposeAssertion,
		VerificationMethod: "did:web:hospital.example:dr-jones#key-1",
		ProofValue:         "c2lnbmF0dXJl",
	}
	sealed, err := SigningInput(cred)
	require.NoError(t, err)

	assert.Equal(t, unsigned, sealed, "signing input must be independent of the proof block")

	full, err := Serialize(cred)
	require.NoError(t, err)
	assert.NotEqual(t, unsigned, full, "full serialization must include the proof")
	assert.Contains(t, string(full), `"proof"`)
}

func TestSigningInput_SensitiveToPayloadChange(t *testing.T) {
	cred := sampleCredential()
	before, err := SigningInput(cred)
	require.NoError(t, err)

	cred.CredentialSubject.Prescription.Medications[0].Quantity = 42
	after, err := SigningInput(cred)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestParse_RoundTrip(t *testing.T) {
	cred := sampleCredential()
	data, err := Serialize(cred)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	reserialized, err := Serialize(parsed)
	require.NoError(t, err)
	assert.Equal(t, data, reserialized)
}

func TestDigest_StableHex(t *testing.T) {
	cred := sampleCredential()
	data, err := Serialize(cred)
	require.NoError(t, err)

	first := Digest(data)
	second := Digest(data)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}
