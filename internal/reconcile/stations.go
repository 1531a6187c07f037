package reconcile

import "github.com/ukydev/fleet-fuel/internal/models"

// DefaultStations is the built-in station and yard table used when nothing
// is configured for a name.
func DefaultStations() []models.StationConfig {
	return []models.StationConfig{
		{Name: "DAR YARD", GoingCheckpoint: models.CheckpointDarYard, ReturnCheckpoint: models.CheckpointDarReturn, Yard: true},
		{Name: "TANGA YARD", GoingCheckpoint: models.CheckpointTangaYard, ReturnCheckpoint: models.CheckpointTangaReturn, Yard: true},
		{Name: "MMSA YARD", GoingCheckpoint: models.CheckpointMMSAYard, ReturnCheckpoint: models.CheckpointMMSAReturn, Yard: true},
		{Name: "DAR", GoingCheckpoint: models.CheckpointDarGoing, ReturnCheckpoint: models.CheckpointDarReturn},
		{Name: "MOROGORO", GoingCheckpoint: models.CheckpointMoroGoing, ReturnCheckpoint: models.CheckpointMoroReturn},
		{Name: "MBEYA", GoingCheckpoint: models.CheckpointMbeyaGoing, ReturnCheckpoint: models.CheckpointMbeyaReturn},
		{Name: "LAKE TUNDUMA", GoingCheckpoint: models.CheckpointTdmGoing, ReturnCheckpoint: models.CheckpointTundumaReturn},
		{Name: "TUNDUMA", GoingCheckpoint: models.CheckpointTdmGoing, ReturnCheckpoint: models.CheckpointTundumaReturn},
		{Name: "LAKE KAPIRI", GoingCheckpoint: models.CheckpointZambiaGoing, ReturnCheckpoint: models.CheckpointZambiaReturn},
		{Name: "LAKE NDOLA", GoingCheckpoint: models.CheckpointZambiaGoing, ReturnCheckpoint: models.CheckpointZambiaReturn},
		{Name: "LUBUMBASHI", GoingCheckpoint: models.CheckpointCongoFuel},
		{Name: "LIKASI", GoingCheckpoint: models.CheckpointCongoFuel},
	}
}
