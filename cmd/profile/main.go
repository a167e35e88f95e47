package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"limitbook/matching"
	"limitbook/wire"
)

func main() {
	// 创建 CPU profile 文件
	cpuFile, err := os.Create("cpu.prof")
	if err != nil {
		panic(err)
	}
	defer cpuFile.Close()

	// 启动 CPU profiling
	pprof.StartCPUProfile(cpuFile)
	defer pprof.StopCPUProfile()

	fmt.Println("=== 性能分析开始 ===")
	fmt.Println("生成 CPU profile: cpu.prof")

	// 创建撮合引擎（队列 + 内存池模式，贴近生产部署）
	engine := matching.New(matching.Config{
		Threading:       matching.Queued,
		Memory:          matching.Pool,
		PoolCapacity:    1 << 20,
		HandoffCapacity: 65000,
		Logger:          zap.NewNop(),
	})
	engine.Start()
	defer engine.Stop()

	// 测试参数
	duration := 10 * time.Second
	numCPU := runtime.NumCPU()
	numWorkers := numCPU - 2
	if numWorkers < 1 {
		numWorkers = 1
	}

	var (
		orderCount atomic.Uint64
		tradeCount atomic.Uint64
	)

	// 消费 trades
	go func() {
		for range engine.Trades() {
			tradeCount.Add(1)
		}
	}()

	fmt.Printf("CPU 核心数: %d\n", numCPU)
	fmt.Printf("生产者数量: %d\n", numWorkers)
	fmt.Printf("测试时长: %v\n\n", duration)

	startTime := time.Now()
	stopChan := make(chan struct{})

	// 启动多个生产者
	var producers sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		producers.Add(1)
		go func(workerID int) {
			defer producers.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 1))
			var orderID uint64
			for {
				select {
				case <-stopChan:
					return
				default:
					side := uint8(orderID % 2)
					price := int64(50000 + rng.Intn(200))
					id := uint64(workerID)<<48 | orderID

					err := engine.SubmitNewOrder(&wire.NewOrderMessage{
						OrderID:  id,
						Price:    price,
						Quantity: 1,
						Side:     side,
					})
					if err != nil {
						return
					}
					orderCount.Add(1)
					orderID++
				}
			}
		}(w)
	}

	// 等待测试时间
	time.Sleep(duration)
	close(stopChan)
	producers.Wait()
	time.Sleep(500 * time.Millisecond)

	elapsed := time.Since(startTime)
	totalOrders := orderCount.Load()
	totalTrades := tradeCount.Load()

	fmt.Println("\n=== 性能测试结果 ===")
	fmt.Printf("总订单数: %d\n", totalOrders)
	fmt.Printf("总成交数: %d\n", totalTrades)
	fmt.Printf("Order QPS: %.0f orders/sec\n", float64(totalOrders)/elapsed.Seconds())
	fmt.Printf("Trade TPS: %.0f trades/sec\n", float64(totalTrades)/elapsed.Seconds())

	fmt.Println("\n分析 CPU profile:")
	fmt.Println("  go tool pprof -http=:8080 cpu.prof")
	fmt.Println("  或者: go tool pprof cpu.prof")
	fmt.Println("  然后输入: top10  (查看前 10 个热点函数)")
	fmt.Println("  然后输入: list <函数名>  (查看具体代码)")
}
