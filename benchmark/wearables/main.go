package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	vitalsGrpc "liyu1981.xyz/vital-signs-service/pkg/grpc"
)

var maxDevices int = 500
var readingsPerDevice int = 6
var httpHostPort string = "127.0.0.1:1080"
var grpcHostPort string = "127.0.0.1:10801"

var grpcClient *vitalsGrpc.VitalsServiceClient

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

var activities = []string{"Active", "Active", "Active", "Active", "NoData", "Fallen"}

func main() {
	deviceIDs := make([]string, maxDevices)
	for i := range maxDevices {
		deviceIDs[i] = uuid.NewString()
	}
	fmt.Printf("generated %v wearable IDs\n", maxDevices)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}

	fmt.Printf("http server verified\n")

	conn, err := grpc.NewClient(grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server:", err)
	}
	defer conn.Close()
	grpcClient = vitalsGrpc.NewVitalsServiceClient(conn)

	fmt.Printf("gRPC client ready\n")

	var startTime time.Time
	var usedTime time.Duration

	startTime = time.Now()
	wg := sync.WaitGroup{}
	for i := range maxDevices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range readingsPerDevice {
				postReading(deviceIDs[i])
			}
			fmt.Printf("\rposted readings for device %v", i)
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	total := maxDevices * readingsPerDevice
	fmt.Printf(
		"\rposted %v readings for %v devices: used time=%v seconds, throughput=%v action/second\n",
		total, maxDevices, usedTime.Seconds(), float64(total)/usedTime.Seconds(),
	)

	startTime = time.Now()
	wg = sync.WaitGroup{}
	for i := range maxDevices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doAction(deviceIDs[i])
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"\n\rdid actions for %v devices: used time=%v seconds, throughput=%v action/second\n",
		maxDevices, usedTime.Seconds(), float64(maxDevices*3)/usedTime.Seconds(),
	)
}

func flipCoin() bool {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(100000)%2 == 0
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

func rndPick(list []string) string {
	rndMu.Lock()
	defer rndMu.Unlock()
	return list[rnd.Intn(len(list))]
}

// genReading mostly stays in the normal band, with the odd excursion so
// the alert path gets some traffic too.
func genReading() map[string]any {
	return map[string]any{
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
		"heart_rate":       rndFloat64(55, 135, 0),
		"temperature":      rndFloat64(35.5, 39.5, 1),
		"respiratory_rate": rndFloat64(10, 26, 0),
		"blood_pressure":   fmt.Sprintf("%.0f/%.0f", rndFloat64(100, 150, 0), rndFloat64(60, 95, 0)),
		"body_activity":    rndPick(activities),
	}
}

func postReading(deviceID string) {
	reading := genReading()

	if flipCoin() {
		jsonData, _ := json.Marshal(reading)
		resp, err := http.Post(fmt.Sprintf("http://%s/devices/%s/readings", httpHostPort, deviceID), "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusTooManyRequests {
			fmt.Printf("\nresponse status code != 201: %v\n", resp.Status)
		}
		return
	}

	req, err := vitalsGrpc.Encode(map[string]any{vitalsGrpc.FieldDeviceID: deviceID, "reading": reading})
	if err != nil {
		panic(err)
	}
	resp, err := grpcClient.PostReading(context.Background(), req)
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	checkStatus(resp.AsMap())
}

func checkStatus(body map[string]any) {
	status, _ := body[vitalsGrpc.FieldStatus].(map[string]any)
	if ok, _ := status["success"].(bool); !ok {
		fmt.Printf("\nresponse success = false: %v\n", status)
	}
}

func doAction(deviceID string) {
	actions := []func(){
		genPostReadingAction(deviceID),
		genGetAlertsAction(deviceID),
		genGetStatusAction(deviceID),
	}
	actionNames := []string{
		"PostReading",
		"GetAlerts",
		"GetStatus",
	}
	rndMu.Lock()
	rnd.Shuffle(len(actions), func(i, j int) {
		actions[i], actions[j] = actions[j], actions[i]
		actionNames[i], actionNames[j] = actionNames[j], actionNames[i]
	})
	pause := time.Duration(100+rnd.Int31n(1000)) * time.Millisecond
	rndMu.Unlock()
	for index, action := range actions {
		action()
		fmt.Printf("\rexecuted action %v for device %v", actionNames[index], deviceID)
		time.Sleep(pause)
	}
}

func genPostReadingAction(deviceID string) func() {
	return func() {
		postReading(deviceID)
	}
}

func genGetAlertsAction(deviceID string) func() {
	return func() {
		if flipCoin() {
			resp, err := http.Get(fmt.Sprintf("http://%s/devices/%s/alerts", httpHostPort, deviceID))
			if err != nil {
				fmt.Printf("\nerror: %v\n", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
				fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
			}
			return
		}

		req, _ := vitalsGrpc.Encode(map[string]any{vitalsGrpc.FieldDeviceID: deviceID})
		resp, err := grpcClient.GetAlerts(context.Background(), req)
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		checkStatus(resp.AsMap())
	}
}

func genGetStatusAction(deviceID string) func() {
	return func() {
		if flipCoin() {
			resp, err := http.Get(fmt.Sprintf("http://%s/devices/%s/status", httpHostPort, deviceID))
			if err != nil {
				fmt.Printf("\nerror: %v\n", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
				fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
			}
			return
		}

		req, _ := vitalsGrpc.Encode(map[string]any{vitalsGrpc.FieldDeviceID: deviceID})
		resp, err := grpcClient.GetDeviceStatus(context.Background(), req)
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		checkStatus(resp.AsMap())
	}
}
