package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const csvHeader = "organism,compound,s_threshold,r_threshold,exception,route_of_administration,indication,high_exposure,source\n"

// guidelineCSV holds one oral row that yields to its intravenous sibling.
const guidelineCSV = csvHeader +
	"Staphylococcus,Cefoxitin,4,4,,,,false,guideline\n" +
	"Staphylococcus,Erythromycin,1,2,,,,false,guideline\n" +
	"Staphylococcus,Clindamycin,0.25,0.5,,,,false,guideline\n" +
	"Enterobacterales,Cefuroxime,8,8,,oral,,false,guideline\n" +
	"Enterobacterales,Cefuroxime,0.001,8,,,,false,guideline\n"

// intrinsicCSV holds one row the guideline overrides.
const intrinsicCSV = csvHeader +
	"Staphylococcus,Cefoxitin,-1,-1,,,,false,\n" +
	"Enterococcus,Fusidic acid,-1,-1,,,,false,\n"

// writeFile writes content into a fresh temp directory and returns the path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFileString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
