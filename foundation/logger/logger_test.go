package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/mineral/foundation/logger"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_RotateSink(t *testing.T) {
	t.Log("Given the need to log into a rotated file.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen using the rotate scheme.", testID)
		{
			path := filepath.Join(t.TempDir(), "node.log")

			log, err := logger.New("TEST", logger.RotateScheme+"://"+path+"?maxsize=1&maxage=1")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the logger: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to construct the logger.", success, testID)

			log.Infow("startup", "status", "testing")
			log.Sync()

			data, err := os.ReadFile(path)
			if err != nil || len(data) == 0 {
				t.Fatalf("\t%s\tTest %d:\tShould write to the file: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould write to the file.", success, testID)

			if _, err := logger.New("TEST"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould construct a second logger: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould construct a second logger.", success, testID)
		}
	}
}
