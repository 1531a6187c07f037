package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// DeliveryOrder is the body of POST /delivery-orders.
type DeliveryOrder struct {
	DONumber    string    `json:"do_number"`
	TruckNumber string    `json:"truck_number"`
	Leg         string    `json:"leg"`
	Movement    string    `json:"movement,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Client      string    `json:"client,omitempty"`
	Date        time.Time `json:"date"`
}

// LPO is a station purchase order.
type LPO struct {
	LPONumber     string    `json:"lpo_number"`
	Date          time.Time `json:"date"`
	Station       string    `json:"station"`
	TruckNumber   string    `json:"truck_number"`
	DONumber      string    `json:"do_number"`
	Liters        float64   `json:"liters"`
	PricePerLiter float64   `json:"price_per_liter"`
	JourneyType   string    `json:"journey_type"`
}

// YardDispense is fuel handed out at a company yard.
type YardDispense struct {
	TruckNumber string    `json:"truck_number"`
	Yard        string    `json:"yard"`
	Liters      float64   `json:"liters"`
	Timestamp   time.Time `json:"timestamp"`
}

var (
	destinations   = []string{"KOLWEZI", "LUBUMBASHI", "NDOLA", "KITWE", "LIKASI"}
	suffixes       = []string{"DXY", "EAG", "DNH", "ECF", "DZB"}
	goingStations  = []string{"MOROGORO", "MBEYA", "TUNDUMA", "LAKE KAPIRI"}
	returnStations = []string{"LAKE NDOLA", "TUNDUMA", "MBEYA"}
	clients        = []string{"GLENCORE", "ERG", "CMOC", "FIRST QUANTUM"}
)

const homeYard = "DAR YARD"

var authToken string

func authorizedPost(url string, contentType string, body *bytes.Buffer) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

// postJSON sends v and returns the response status code.
func postJSON(apiURL, path string, v interface{}) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s payload: %w", path, err)
	}
	resp, err := authorizedPost(apiURL+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return 0, fmt.Errorf("failed to post %s: %w", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func randomTruck() string {
	return fmt.Sprintf("T%d %s", 100+rand.Intn(900), suffixes[rand.Intn(len(suffixes))])
}

// Trip walks one truck through a round trip: going DO, yard fill, a going
// LPO, the return DO and a return LPO.
type Trip struct {
	Truck       string
	Destination string
	GoingDO     string
	ReturnDO    string
	Date        time.Time
	Step        int
}

func newTrip(truck string, start time.Time) *Trip {
	n := 6000 + rand.Intn(4000)
	return &Trip{
		Truck:       truck,
		Destination: destinations[rand.Intn(len(destinations))],
		GoingDO:     strconv.Itoa(n),
		ReturnDO:    strconv.Itoa(n + 10000),
		Date:        start,
	}
}

// Next returns the API path and payload of the trip's next event. done is
// true once the return leg has been fuelled.
func (t *Trip) Next() (path string, payload interface{}, done bool) {
	step := t.Step
	t.Step++
	t.Date = t.Date.Add(time.Duration(12+rand.Intn(36)) * time.Hour)

	switch step {
	case 0:
		return "/delivery-orders", DeliveryOrder{
			DONumber:    t.GoingDO,
			TruckNumber: t.Truck,
			Leg:         "going",
			Movement:    "EXPORT",
			From:        "DAR",
			To:          t.Destination,
			Client:      clients[rand.Intn(len(clients))],
			Date:        t.Date,
		}, false
	case 1:
		return "/yard-dispenses", YardDispense{
			TruckNumber: t.Truck,
			Yard:        homeYard,
			Liters:      float64(20 + rand.Intn(60)),
			Timestamp:   t.Date,
		}, false
	case 2:
		return "/lpos", t.lpo(goingStations, t.GoingDO, "going"), false
	case 3:
		return "/delivery-orders", DeliveryOrder{
			DONumber:    t.ReturnDO,
			TruckNumber: t.Truck,
			Leg:         "return",
			Movement:    "IMPORT",
			From:        t.Destination,
			To:          "DAR",
			Date:        t.Date,
		}, false
	default:
		return "/lpos", t.lpo(returnStations, t.ReturnDO, "return"), true
	}
}

func (t *Trip) lpo(stations []string, do, journey string) LPO {
	return LPO{
		LPONumber:     fmt.Sprintf("LPO-%d", 1000+rand.Intn(9000)),
		Date:          t.Date,
		Station:       stations[rand.Intn(len(stations))],
		TruckNumber:   t.Truck,
		DONumber:      do,
		Liters:        float64(50 + rand.Intn(150)),
		PricePerLiter: 3050 + float64(rand.Intn(250)),
		JourneyType:   journey,
	}
}

func simulateTruck(ctx context.Context, apiURL, truck string, interval time.Duration) {
	trip := newTrip(truck, time.Now())
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		path, payload, done := trip.Next()
		status, err := postJSON(apiURL, path, payload)
		if err != nil {
			log.WithError(err).WithField("truck", truck).Error("Failed to send event")
		} else {
			log.WithFields(log.Fields{
				"truck":  truck,
				"path":   path,
				"step":   trip.Step,
				"status": status,
			}).Info("Sent event")
		}
		if done {
			trip = newTrip(truck, trip.Date.Add(24*time.Hour))
		}
	}
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	// Optional JWT for protected API
	authToken = os.Getenv("SIM_AUTH_TOKEN")

	fleetSize := envInt("FLEET_SIZE", 10)

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	interval := 2 * time.Second
	if n := envInt("SIM_TICK_SECONDS", 2); n >= 1 {
		interval = time.Duration(n) * time.Second
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting fuel round trip simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for i := 0; i < fleetSize; i++ {
		go simulateTruck(ctx, apiURL, randomTruck(), interval)
	}
	<-ctx.Done()
	log.Info("Simulation stopped")
}
