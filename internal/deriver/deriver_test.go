package deriver

import (
	"strings"
	"testing"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

func h(typeByte, versionByte byte) []byte {
	b := make([]byte, 32)
	b[30] = typeByte
	b[31] = versionByte
	return b
}

func TestDerive_BinaryOp_EncryptedRHS(t *testing.T) {
	// S1: FheAdd(lhs=H(2,1), rhs=H(2,1), scalarByte=0x00, result=H(2,1))
	args := map[string]any{
		"lhs":        h(2, 1),
		"rhs":        h(2, 1),
		"scalarByte": byte(0x00),
		"result":     h(2, 1),
	}
	d, ok := Derive(models.EventFheAdd, args)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if d.ScalarFlag != 0 {
		t.Errorf("expected scalar_flag 0, got %d", d.ScalarFlag)
	}
	if d.LHSType == nil || *d.LHSType != 2 {
		t.Errorf("expected lhs_type=2, got %v", d.LHSType)
	}
	if d.RHSType == nil || *d.RHSType != 2 {
		t.Errorf("expected rhs_type=2, got %v", d.RHSType)
	}
	if d.ResultType == nil || *d.ResultType != 2 {
		t.Errorf("expected result_type=2, got %v", d.ResultType)
	}
	if d.ResultHandleVersion == nil || *d.ResultHandleVersion != 1 {
		t.Errorf("expected result_handle_version=1, got %v", d.ResultHandleVersion)
	}
}

func TestDerive_BinaryOp_ScalarRHS(t *testing.T) {
	// S2: FheMul(lhs=H(2), rhs=arbitrary, scalarByte=0x01, result=H(2))
	args := map[string]any{
		"lhs":        h(2, 0),
		"rhs":        []byte{1, 2, 3}, // not a 32-byte handle; irrelevant since scalar
		"scalarByte": byte(0x01),
		"result":     h(2, 0),
	}
	d, ok := Derive(models.EventFheMul, args)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if d.ScalarFlag != 1 {
		t.Errorf("expected scalar_flag 1, got %d", d.ScalarFlag)
	}
	if d.RHSType != nil {
		t.Errorf("expected rhs_type unset for scalar rhs, got %v", *d.RHSType)
	}
}

func TestDerive_ScalarByte_AnyNonzero(t *testing.T) {
	args := map[string]any{"scalarByte": byte(0xFF)}
	d, _ := Derive(models.EventFheAdd, args)
	if d.ScalarFlag != 1 {
		t.Errorf("expected any nonzero scalarByte to mean scalar, got %d", d.ScalarFlag)
	}
}

func TestDerive_Cast(t *testing.T) {
	args := map[string]any{
		"ct":     h(3, 0),
		"toType": 5,
		"result": h(5, 0),
	}
	d, _ := Derive(models.EventCast, args)
	if d.LHSType == nil || *d.LHSType != 3 {
		t.Errorf("expected lhs_type=3, got %v", d.LHSType)
	}
	if d.CastToType == nil || *d.CastToType != 5 {
		t.Errorf("expected cast_to_type=5, got %v", d.CastToType)
	}
	if d.ResultType == nil || *d.ResultType != 5 {
		t.Errorf("expected result_type=5, got %v", d.ResultType)
	}
}

func TestDerive_VerifyInput_FallbackToHandle(t *testing.T) {
	args := map[string]any{
		"inputHandle": h(4, 2),
		"result":      h(4, 2),
	}
	d, _ := Derive(models.EventVerifyInput, args)
	if d.InputType == nil || *d.InputType != 4 {
		t.Errorf("expected input_type fallback to handle type 4, got %v", d.InputType)
	}
}

func TestDerive_VerifyInput_DeclaredWins(t *testing.T) {
	args := map[string]any{
		"inputHandle": h(4, 2),
		"inputType":   9,
		"result":      h(4, 2),
	}
	d, _ := Derive(models.EventVerifyInput, args)
	if d.InputType == nil || *d.InputType != 9 {
		t.Errorf("expected declared input_type 9 to win, got %v", d.InputType)
	}
}

func TestDerive_TrivialEncrypt(t *testing.T) {
	args := map[string]any{
		"pt":     42,
		"toType": 3,
		"result": h(3, 0),
	}
	d, _ := Derive(models.EventTrivialEncrypt, args)
	if d.CastToType == nil || *d.CastToType != 3 {
		t.Errorf("expected cast_to_type=3, got %v", d.CastToType)
	}
	if d.ResultType == nil || *d.ResultType != 3 {
		t.Errorf("expected result_type=3, got %v", d.ResultType)
	}
}

func TestDerive_FheRandBounded(t *testing.T) {
	args := map[string]any{
		"upperBound": 100,
		"randType":   6,
		"seed":       7,
		"result":     h(6, 0),
	}
	d, _ := Derive(models.EventFheRandBounded, args)
	if d.RandType == nil || *d.RandType != 6 {
		t.Errorf("expected rand_type=6, got %v", d.RandType)
	}
}

func TestDerive_UndecodableArgs(t *testing.T) {
	d, ok := Derive(models.EventFheAdd, nil)
	if ok {
		t.Error("expected ok=false for nil args")
	}
	if d.ScalarFlag != 0 {
		t.Error("expected zero-value DerivedFields for nil args")
	}
}

func TestCheckConsistency_Mismatch(t *testing.T) {
	castTo := 5
	resultType := 6
	d := models.DerivedFields{CastToType: &castTo, ResultType: &resultType}
	w, mismatched := CheckConsistency(1, "0xabc", 0, models.EventCast, d)
	if !mismatched {
		t.Fatal("expected mismatch to be detected")
	}
	if w.ExpectedType != 5 || w.ActualType != 6 {
		t.Errorf("unexpected warning payload: %+v", w)
	}
}

func TestCheckConsistency_Agree(t *testing.T) {
	same := 5
	d := models.DerivedFields{CastToType: &same, ResultType: &same}
	_, mismatched := CheckConsistency(1, "0xabc", 0, models.EventCast, d)
	if mismatched {
		t.Error("expected no mismatch when types agree")
	}
}

func TestWarningCollector_Caps(t *testing.T) {
	c := NewWarningCollector(2)
	for i := 0; i < 5; i++ {
		c.Add(models.DeriveWarning{LogIndex: uint64(i)})
	}
	if len(c.Warnings()) != 2 {
		t.Errorf("expected 2 retained warnings, got %d", len(c.Warnings()))
	}
	if c.Dropped() != 3 {
		t.Errorf("expected 3 dropped warnings, got %d", c.Dropped())
	}
}

func mustHex(b []byte) string {
	var sb strings.Builder
	sb.WriteString("0x")
	for _, x := range b {
		sb.WriteString(string("0123456789abcdef"[x>>4]))
		sb.WriteString(string("0123456789abcdef"[x&0xf]))
	}
	return sb.String()
}
