package timezone

import (
	"os"
	"sync/atomic"
	"time"
	_ "time/tzdata" // Zonendaten auch in minimalen Container-Images

	log "github.com/sirupsen/logrus"
)

// aktuelle Zeitzone, nil bis Initialize aufgerufen wurde
var currentLocation atomic.Pointer[time.Location]

// Initialize setzt die Zeitzone. Ein leerer Name greift auf die TZ-Umgebungsvariable zurück, danach auf UTC.
func Initialize(name string) *time.Location {
	if name == "" {
		name = os.Getenv("TZ")
	}
	if name == "" {
		name = "UTC"
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", name, err)
		loc = time.UTC
	} else {
		log.Infof("Timezone set to %s", loc)
	}
	currentLocation.Store(loc)
	return loc
}

// Location gibt die konfigurierte Zeitzone zurück
func Location() *time.Location {
	if loc := currentLocation.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	return time.Now().In(Location())
}

// RFC3339 formatiert t in der konfigurierten Zeitzone
func RFC3339(t time.Time) string {
	return t.In(Location()).Format(time.RFC3339)
}
